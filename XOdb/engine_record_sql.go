// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

import (
	"fmt"
	"strings"
)

// recordStatement 是记录引擎的编译产物，SQL 携带顺序参数，
// 命名占位符以 Binding 值留存于参数序列，Bind 时替换为实际值。
type recordStatement struct {
	sql      string         // 完整语句
	where    string         // 条件子句（供统计复用）
	params   []any          // 顺序参数
	bindings map[string]any // 命名占位符登记
}

// Query 获取编译出的 SQL 语句。
func (s *recordStatement) Query() any { return s.sql }

// Bindings 获取编译期登记的命名占位符。
func (s *recordStatement) Bindings() map[string]any { return s.bindings }

// Bind 以实际参数替换命名占位符，返回顺序参数序列。
// 产物自身保持不变，同一产物可被并发复用。
func (s *recordStatement) Bind(bindings map[string]any) (any, error) {
	args := make([]any, len(s.params))
	for i, param := range s.params {
		if name, ok := param.(Binding); ok {
			value, exist := bindings[string(name)]
			if !exist {
				return nil, newError("parameter "+string(name), ErrUnboundParameter)
			}
			args[i] = value
			continue
		}
		args[i] = param
	}
	return args, nil
}

// sqlOperators 映射查询操作符至 SQL 比较符。
var sqlOperators = map[Operator]string{
	OpEq:    "=",
	OpNeq:   "<>",
	OpGt:    ">",
	OpGte:   ">=",
	OpLt:    "<",
	OpLte:   "<=",
	OpLike:  "LIKE",
	OpNlike: "NOT LIKE",
	OpRegex: "REGEXP",
}

// sqlGroup 是条件分组的构建状态。
type sqlGroup struct {
	or    bool
	parts []string
}

// sqlWalker 在查询遍历中拼装 SQL 语句。
type sqlWalker struct {
	engine   string
	columns  []string
	groups   []*sqlGroup
	where    string
	order    []string
	limit    string
	params   []any
	bindings map[string]any
}

func (w *sqlWalker) OnQuery(timing Timing, query *Query) error { return nil }

func (w *sqlWalker) OnSelect(timing Timing, fields []string) error { return nil }

func (w *sqlWalker) OnSelectField(field string, index int) error {
	w.columns = append(w.columns, "`"+field+"`")
	return nil
}

func (w *sqlWalker) OnFilter(timing Timing, filter *Filter, depth int) error {
	if timing == TimingStart {
		w.groups = append(w.groups, &sqlGroup{or: filter.Or})
		return nil
	}

	group := w.groups[len(w.groups)-1]
	w.groups = w.groups[:len(w.groups)-1]
	conjunction := " AND "
	if group.or {
		conjunction = " OR "
	}
	clause := strings.Join(group.parts, conjunction)
	if depth > 0 {
		clause = "(" + clause + ")"
		w.groups[len(w.groups)-1].parts = append(w.groups[len(w.groups)-1].parts, clause)
	} else {
		w.where = clause
	}
	return nil
}

func (w *sqlWalker) OnCondition(condition *Condition, filter *Filter, index int) error {
	if err := condition.Validate(); err != nil {
		return err
	}
	group := w.groups[len(w.groups)-1]
	column := "`" + condition.Field + "`"

	switch condition.Operator {
	case OpNil:
		group.parts = append(group.parts, column+" IS NULL")
	case OpNnil:
		group.parts = append(group.parts, column+" IS NOT NULL")
	case OpBtw, OpNbtw:
		keyword := "BETWEEN"
		if condition.Operator == OpNbtw {
			keyword = "NOT BETWEEN"
		}
		group.parts = append(group.parts, column+" "+keyword+" ? AND ?")
		w.push(condition.Values[0])
		w.push(condition.Values[1])
	case OpIn, OpNin:
		keyword := "IN"
		if condition.Operator == OpNin {
			keyword = "NOT IN"
		}
		values := flattenValues(condition.Values)
		holders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		group.parts = append(group.parts, column+" "+keyword+" ("+holders+")")
		for _, value := range values {
			w.push(value)
		}
	case OpFtq:
		return unsupportedError(w.engine, "full text query")
	default:
		symbol, exist := sqlOperators[condition.Operator]
		if !exist {
			return unsupportedError(w.engine, "operator "+string(condition.Operator))
		}
		group.parts = append(group.parts, column+" "+symbol+" ?")
		w.push(condition.Value())
	}
	return nil
}

func (w *sqlWalker) OnOrderBy(timing Timing, orders []OrderByField) error { return nil }

func (w *sqlWalker) OnOrderByField(order OrderByField, index int) error {
	direction := "ASC"
	if order.Direction == Desc {
		direction = "DESC"
	}
	w.order = append(w.order, "`"+order.Field+"` "+direction)
	return nil
}

func (w *sqlWalker) OnPage(start int, count int) error {
	if count <= 0 {
		// OFFSET 需要 LIMIT 前导
		w.limit = fmt.Sprintf("LIMIT 9223372036854775807 OFFSET %v", start)
		return nil
	}
	if start > 0 {
		w.limit = fmt.Sprintf("LIMIT %v OFFSET %v", count, start)
	} else {
		w.limit = fmt.Sprintf("LIMIT %v", count)
	}
	return nil
}

// push 追加一个顺序参数，命名占位符一并登记。
func (w *sqlWalker) push(value any) {
	if name, ok := value.(Binding); ok {
		if w.bindings == nil {
			w.bindings = make(map[string]any)
		}
		w.bindings[string(name)] = nil
	}
	w.params = append(w.params, value)
}

// flattenValues 展平集合条件的值，单个切片值退化为其元素。
func flattenValues(values []any) []any {
	if len(values) == 1 {
		if slice, ok := values[0].([]any); ok {
			return slice
		}
	}
	return values
}

// compileRecordQuery 将查询编译为 SQL 语句。
func compileRecordQuery(engine string, query *Query) (CompiledQuery, error) {
	if query == nil {
		return nil, ErrNilQuery
	}
	walker := &sqlWalker{engine: engine}
	if err := WalkQuery(query, walker); err != nil {
		return nil, err
	}

	var sb strings.Builder
	switch query.Construct {
	case ConstructSelect, "":
		sb.WriteString("SELECT ")
		if len(walker.columns) > 0 {
			ensured := walker.columns
			if !containsColumn(ensured, IdKey) {
				ensured = append([]string{"`" + IdKey + "`"}, ensured...)
			}
			sb.WriteString(strings.Join(ensured, ", "))
		} else {
			sb.WriteString("*")
		}
		sb.WriteString(" FROM `" + query.Entity + "`")
	case ConstructDelete:
		sb.WriteString("DELETE FROM `" + query.Entity + "`")
	default:
		return nil, unsupportedError(engine, "construct "+string(query.Construct))
	}

	if walker.where != "" {
		sb.WriteString(" WHERE " + walker.where)
	}
	if query.Construct != ConstructDelete {
		if len(walker.order) > 0 {
			sb.WriteString(" ORDER BY " + strings.Join(walker.order, ", "))
		}
		if walker.limit != "" {
			sb.WriteString(" " + walker.limit)
		}
	}

	return &recordStatement{
		sql:      sb.String(),
		where:    walker.where,
		params:   walker.params,
		bindings: walker.bindings,
	}, nil
}

// containsColumn 判断列集合是否已包含指定列。
func containsColumn(columns []string, name string) bool {
	quoted := "`" + name + "`"
	for _, column := range columns {
		if column == quoted {
			return true
		}
	}
	return false
}
