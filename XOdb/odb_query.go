// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

import (
	"sort"

	"github.com/eframework-org/GO.UTIL/XString"
)

// 内置字段的键名，跨引擎保持稳定，是核心对外定义的唯一数据布局。
const (
	// EntityKey 是实体类型标记的键名。
	EntityKey = "$entity"

	// IdKey 是对象标识的键名。
	IdKey = "id"

	// TimestampKey 是对象时间戳的键名。
	TimestampKey = "timestamp"

	// TotalKey 是批量操作结果中总数的键名。
	TotalKey = "totalCount"

	// LinksKey 是一对多关系集合的键名。
	LinksKey = "_o2m_links"
)

// Record 表示一条引擎无关的原生记录。
type Record = map[string]any

// Operator 表示查询条件的比较操作符。
type Operator string

const (
	OpEq    Operator = "eq"    // 等于
	OpNeq   Operator = "neq"   // 不等于
	OpGt    Operator = "gt"    // 大于
	OpGte   Operator = "gte"   // 大于等于
	OpLt    Operator = "lt"    // 小于
	OpLte   Operator = "lte"   // 小于等于
	OpLike  Operator = "like"  // 模糊匹配
	OpNlike Operator = "nlike" // 模糊不匹配
	OpBtw   Operator = "btw"   // 区间匹配（两个值）
	OpNbtw  Operator = "nbtw"  // 区间不匹配（两个值）
	OpIn    Operator = "in"    // 集合匹配
	OpNin   Operator = "nin"   // 集合不匹配
	OpNil   Operator = "nil"   // 字段为空
	OpNnil  Operator = "nnil"  // 字段非空
	OpRegex Operator = "regex" // 正则匹配
	OpFtq   Operator = "ftq"   // 全文检索
)

// Construct 表示查询的构造类型。
type Construct string

const (
	ConstructSelect Construct = "select"
	ConstructInsert Construct = "insert"
	ConstructUpdate Construct = "update"
	ConstructDelete Construct = "delete"
)

// Direction 表示排序方向。
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Binding 表示条件值中的命名占位符，编译后的查询形态保留占位符，
// 执行时由 Query.Bindings 提供实际值（拷贝后替换，不修改缓存形态）。
type Binding string

// Condition 表示一个查询条件。
// 区间操作符（btw/nbtw）必须携带两个值，nil/nnil 不携带值。
type Condition struct {
	Field    string   // 字段名称
	Operator Operator // 比较操作符
	Values   []any    // 条件值
}

// Value 返回条件的首个值，若无值则返回 nil。
func (c *Condition) Value() any {
	if len(c.Values) == 0 {
		return nil
	}
	return c.Values[0]
}

// Validate 校验条件的完整性。
func (c *Condition) Validate() error {
	if XString.IsEmpty(c.Field) && c.Operator != OpFtq {
		return newError("condition field is nil", ErrMalformedCondition)
	}
	switch c.Operator {
	case OpBtw, OpNbtw:
		if len(c.Values) != 2 {
			return newError("range operator requires exactly two values", ErrMalformedCondition)
		}
	case OpNil, OpNnil:
		if len(c.Values) != 0 {
			return newError("nil operator carries no value", ErrMalformedCondition)
		}
	default:
		if len(c.Values) == 0 {
			return newError("operator requires a value", ErrMalformedCondition)
		}
	}
	return nil
}

// Filter 表示有序的条件集合，条目为 *Condition 或嵌套的 *Filter 分组。
// 条目默认以 and 连接，Or 为 true 时以 or 连接。
// 条目顺序即声明顺序，编译结果的形态因此是稳定的。
type Filter struct {
	Or      bool  // 是否以 or 连接条目
	Start   int   // 分页偏移（由表达式的 start 关键字填充）
	Count   int   // 分页数量（由表达式的 count 关键字填充）
	entries []any // *Condition 或 *Filter
}

// NewFilter 创建空的条件集合。
func NewFilter() *Filter { return &Filter{} }

// Add 追加一个查询条件。
func (f *Filter) Add(field string, operator Operator, values ...any) *Filter {
	f.entries = append(f.entries, &Condition{Field: field, Operator: operator, Values: values})
	return f
}

// Group 追加一个嵌套分组。
func (f *Filter) Group(group *Filter) *Filter {
	if group != nil {
		f.entries = append(f.entries, group)
	}
	return f
}

// Size 返回条目数量。
func (f *Filter) Size() int {
	if f == nil {
		return 0
	}
	return len(f.entries)
}

// Each 按声明顺序遍历条目，fn 返回 false 时终止遍历。
func (f *Filter) Each(fn func(index int, entry any) bool) {
	if f == nil {
		return
	}
	for i, e := range f.entries {
		if !fn(i, e) {
			return
		}
	}
}

// Validate 校验集合内所有条件的完整性。
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	for _, e := range f.entries {
		switch v := e.(type) {
		case *Condition:
			if err := v.Validate(); err != nil {
				return err
			}
		case *Filter:
			if err := v.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// OrderByField 表示一个排序字段。
type OrderByField struct {
	Field     string    // 字段名称
	Direction Direction // 排序方向
}

// Query 表示一个引擎无关的查询。
// 仅当 Name 非空、实体可解析且 CacheMeta 为 true 时，编译结果才会被缓存。
type Query struct {
	Entity    string         // 目标实体（可为空，由门面补充）
	Construct Construct      // 构造类型
	Where     *Filter        // 查询条件
	Order     []OrderByField // 排序字段
	Fields    []string       // 投影字段
	Start     int            // 分页偏移
	Count     int            // 分页数量
	Name      string         // 查询名称（启用缓存的前提）
	Bindings  map[string]any // 命名参数
	CacheMeta bool           // 是否缓存编译结果
}

// NewQuery 创建指定实体的查询，默认构造类型为 select。
func NewQuery(entity string) *Query {
	return &Query{Entity: entity, Construct: ConstructSelect}
}

// Filter 设置查询条件，pagination 信息（表达式中的 start/count）一并提升至查询。
func (q *Query) Filter(where *Filter) *Query {
	q.Where = where
	if where != nil {
		if where.Start > 0 {
			q.Start = where.Start
		}
		if where.Count > 0 {
			q.Count = where.Count
		}
	}
	return q
}

// OrderBy 追加一个排序字段。
func (q *Query) OrderBy(field string, direction Direction) *Query {
	q.Order = append(q.Order, OrderByField{Field: field, Direction: direction})
	return q
}

// Select 设置投影字段。
func (q *Query) Select(fields ...string) *Query {
	q.Fields = fields
	return q
}

// Page 设置分页偏移和数量。
func (q *Query) Page(start int, count int) *Query {
	q.Start = start
	q.Count = count
	return q
}

// Named 设置查询名称并启用编译缓存。
func (q *Query) Named(name string) *Query {
	q.Name = name
	q.CacheMeta = true
	return q
}

// Bind 设置一个命名参数。
func (q *Query) Bind(name string, value any) *Query {
	if q.Bindings == nil {
		q.Bindings = make(map[string]any)
	}
	q.Bindings[name] = value
	return q
}

// Cacheable 判定查询是否满足缓存编译结果的不变式。
func (q *Query) Cacheable() bool {
	return q.CacheMeta && !XString.IsEmpty(q.Name) && !XString.IsEmpty(q.Entity)
}

// Clone 返回查询的浅拷贝，门面在补充实体或强制分页时使用，确保不修改调用方的查询。
func (q *Query) Clone() *Query {
	nq := *q
	return &nq
}

// JSON 形态查询的键名。
const (
	queryKeyName      = "name"
	queryKeyConstruct = "construct"
	queryKeyCache     = "cache"
	queryKeyStart     = "start"
	queryKeyCount     = "count"
	queryKeyWhere     = "where"
	queryKeyOrderBy   = "orderBy"
	queryKeySelect    = "select"
	queryKeyOperator  = "op"
	queryKeyValue     = "value"
)

// ParseQuery 从 JSON 形态的结构中解析查询，bindings 为可选的命名参数。
//
// 结构示例：
//
//	{
//	    "$entity": "Driver",
//	    "name": "drivers.byName",
//	    "cache": true,
//	    "start": 10, "count": 5,
//	    "select": ["name", "age"],
//	    "where": {
//	        "name": {"op": "like", "value": "Ada%"},
//	        "age": 30,
//	        "or": {"status": "active", "vip": true}
//	    },
//	    "orderBy": ["name", "-age"]
//	}
//
// 由于 Go 的 map 遍历无序，where 中的字段按名称排序后解析，以保证编译形态稳定。
func ParseQuery(source map[string]any, bindings map[string]any) *Query {
	if source == nil {
		return nil
	}
	q := &Query{Construct: ConstructSelect, Bindings: bindings}
	if v, ok := source[EntityKey].(string); ok {
		q.Entity = v
	}
	if v, ok := source[queryKeyName].(string); ok {
		q.Name = v
	}
	if v, ok := source[queryKeyConstruct].(string); ok && v != "" {
		q.Construct = Construct(v)
	}
	if v, ok := source[queryKeyCache].(bool); ok {
		q.CacheMeta = v
	}
	q.Start = toIntValue(source[queryKeyStart], 0)
	q.Count = toIntValue(source[queryKeyCount], 0)
	if v, ok := source[queryKeySelect].([]any); ok {
		for _, fv := range v {
			if s, ok := fv.(string); ok {
				q.Fields = append(q.Fields, s)
			}
		}
	}
	if v, ok := source[queryKeyWhere].(map[string]any); ok {
		q.Where = parseFilter(v, false)
	}
	switch v := source[queryKeyOrderBy].(type) {
	case []any:
		for _, fv := range v {
			if s, ok := fv.(string); ok && s != "" {
				if s[0] == '-' {
					q.Order = append(q.Order, OrderByField{Field: s[1:], Direction: Desc})
				} else {
					q.Order = append(q.Order, OrderByField{Field: s, Direction: Asc})
				}
			}
		}
	case []string:
		for _, s := range v {
			if s == "" {
				continue
			}
			if s[0] == '-' {
				q.Order = append(q.Order, OrderByField{Field: s[1:], Direction: Desc})
			} else {
				q.Order = append(q.Order, OrderByField{Field: s, Direction: Asc})
			}
		}
	}
	return q
}

// parseFilter 解析 JSON 形态的条件集合。
func parseFilter(source map[string]any, or bool) *Filter {
	f := &Filter{Or: or}
	fields := make([]string, 0, len(source))
	for k := range source {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	for _, field := range fields {
		value := source[field]
		if field == "or" || field == "and" {
			if group, ok := value.(map[string]any); ok {
				f.Group(parseFilter(group, field == "or"))
			}
			continue
		}
		switch v := value.(type) {
		case map[string]any:
			op := OpEq
			if s, ok := v[queryKeyOperator].(string); ok && s != "" {
				op = Operator(s)
			}
			switch val := v[queryKeyValue].(type) {
			case nil:
				f.Add(field, op)
			case []any:
				f.Add(field, op, val...)
			default:
				f.Add(field, op, val)
			}
		default:
			f.Add(field, OpEq, v)
		}
	}
	return f
}

// toIntValue 是整型转换辅助函数。
func toIntValue(v any, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}
