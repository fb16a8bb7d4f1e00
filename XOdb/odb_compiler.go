// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

// CompiledQuery 表示一次查询编译的产物。
// 产物本身可能含有命名占位符，执行前通过 Bind 以实际参数替换，
// Bind 不得修改产物自身，使得同一产物可被并发复用。
type CompiledQuery interface {
	// Query 获取后端形态的查询载体。
	Query() any

	// Bindings 获取编译期收集的占位符绑定。
	Bindings() map[string]any

	// Bind 以实际参数替换占位符并返回可执行的查询载体。
	// 缺失必要参数时返回错误，产物自身保持不变。
	Bind(bindings map[string]any) (any, error)
}

// QueryCompiler 将后端无关的查询编译为后端形态的产物。
type QueryCompiler interface {
	// Compile 编译查询，查询自身不被修改。
	Compile(query *Query) (CompiledQuery, error)
}

// Timing 描述遍历事件的时机。
type Timing int

const (
	TimingStart Timing = iota // 进入
	TimingEnd                 // 离开
)

// QueryWalker 接收查询遍历过程中的事件回调。
// WalkQuery 按固定顺序触发：查询、选择列、条件树（深度优先）、排序、分页。
type QueryWalker interface {
	// OnQuery 查询整体的进入与离开。
	OnQuery(timing Timing, query *Query) error

	// OnSelect 选择列集合的进入与离开，进入后对每列触发 OnSelectField。
	OnSelect(timing Timing, fields []string) error

	// OnSelectField 单个选择列。
	OnSelectField(field string, index int) error

	// OnFilter 条件分组的进入与离开，depth 为分组深度，根节点为 0。
	OnFilter(timing Timing, filter *Filter, depth int) error

	// OnCondition 单个条件，index 为其在分组内的序号。
	OnCondition(condition *Condition, filter *Filter, index int) error

	// OnOrderBy 排序集合的进入与离开，进入后对每项触发 OnOrderByField。
	OnOrderBy(timing Timing, orders []OrderByField) error

	// OnOrderByField 单个排序项。
	OnOrderByField(order OrderByField, index int) error

	// OnPage 分页信息，仅在 count > 0 或 start > 0 时触发。
	OnPage(start int, count int) error
}

// WalkQuery 深度优先遍历查询并触发 walker 的事件回调。
// 任一回调返回错误时遍历即刻终止并透传该错误。
func WalkQuery(query *Query, walker QueryWalker) error {
	if query == nil {
		return ErrNilQuery
	}
	if err := walker.OnQuery(TimingStart, query); err != nil {
		return err
	}

	if len(query.Fields) > 0 {
		if err := walker.OnSelect(TimingStart, query.Fields); err != nil {
			return err
		}
		for i, field := range query.Fields {
			if err := walker.OnSelectField(field, i); err != nil {
				return err
			}
		}
		if err := walker.OnSelect(TimingEnd, query.Fields); err != nil {
			return err
		}
	}

	if query.Where != nil && query.Where.Size() > 0 {
		if err := walkFilter(query.Where, walker, 0); err != nil {
			return err
		}
	}

	if len(query.Order) > 0 {
		if err := walker.OnOrderBy(TimingStart, query.Order); err != nil {
			return err
		}
		for i, order := range query.Order {
			if err := walker.OnOrderByField(order, i); err != nil {
				return err
			}
		}
		if err := walker.OnOrderBy(TimingEnd, query.Order); err != nil {
			return err
		}
	}

	if query.Start > 0 || query.Count > 0 {
		if err := walker.OnPage(query.Start, query.Count); err != nil {
			return err
		}
	}

	return walker.OnQuery(TimingEnd, query)
}

// walkFilter 递归遍历条件分组。
func walkFilter(filter *Filter, walker QueryWalker, depth int) error {
	if err := walker.OnFilter(TimingStart, filter, depth); err != nil {
		return err
	}
	var walkErr error
	filter.Each(func(index int, entry any) bool {
		switch v := entry.(type) {
		case *Condition:
			walkErr = walker.OnCondition(v, filter, index)
		case *Filter:
			walkErr = walkFilter(v, walker, depth+1)
		}
		return walkErr == nil
	})
	if walkErr != nil {
		return walkErr
	}
	return walker.OnFilter(TimingEnd, filter, depth)
}
