// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOdbCond(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		defer exprParserCache.Clear()
		exprParserCache.Clear()

		tests := []struct {
			name string
			args []any
		}{
			{
				name: "Empty",
				args: []any{},
			},
			{
				name: "Existing",
				args: []any{NewFilter().Add("name", OpEq, "test")},
			},
			{
				name: "Expression",
				args: []any{"name == {0}", "test"},
			},
		}

		for _, test := range tests {
			t.Run(test.name, func(t *testing.T) {
				wg := sync.WaitGroup{}
				for range 100 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						filter := Cond(test.args...)
						assert.NotNil(t, filter, "创建的条件实例应当不为空。")
					}()
				}
				wg.Wait()
			})
		}
	})

	t.Run("Parse", func(t *testing.T) {
		defer exprParserCache.Clear()
		exprParserCache.Clear()

		tests := []struct {
			expr  string
			args  []any
			panic bool
		}{
			// 基本操作符测试 - 正常情况
			{"age > {0}", []any{18}, false},
			{"age >= {0}", []any{18}, false},
			{"age < {0}", []any{30}, false},
			{"age <= {0}", []any{30}, false},
			{"name == {0}", []any{"test"}, false},
			{"name != {0}", []any{"test"}, false},
			{"name like {0}", []any{"test%"}, false},
			{"name !like {0}", []any{"test%"}, false},
			{"age btw {0} {1}", []any{18, 30}, false},
			{"age !btw {0} {1}", []any{18, 30}, false},
			{"status in {0}", []any{[]any{"a", "b"}}, false},
			{"status !in {0}", []any{[]any{"a", "b"}}, false},
			{"deleted nil", []any{}, false},
			{"deleted !nil", []any{}, false},
			{"name regex {0}", []any{"^A.*$"}, false},
			{"text ftq {0}", []any{"roadster"}, false},

			// 命名占位符测试
			{"age > :minAge", []any{}, false},
			{"age > :minAge && name like :pattern", []any{}, false},

			// 复合条件测试 - 正常情况
			{"(age > {0} && name like {1}) || (status == {2})", []any{18, "test%", "active"}, false},
			{"((age >= {0} && age <= {1}) || (score > {2})) && active == {3}", []any{18, 30, 90, true}, false},
			{"a == {0} || (b == {1} && c == {2})", []any{1, 2, 3}, false},

			// 分页参数测试 - 正常情况
			{"count == {0}", []any{1}, false},
			{"start == {0}", []any{1}, false},
			{"name == {0} && count == {1} && start == {2}", []any{"test", 20, 30}, false},

			// 语法错误测试
			{"((a > {0})", []any{1}, true},              // 括号不匹配
			{"a > {abc}", []any{1}, true},               // 参数索引格式错误
			{"a b", []any{}, true},                      // 无效的表达式
			{"a >", []any{}, true},                      // 缺失条件值
			{"a btw {0}", []any{1}, true},               // 区间操作符缺失第二个值
			{"a == {0} &&", []any{1}, true},             // 悬空的连接符
			{"a == {0} && b == {1} || c == {2}", []any{1, 2, 3}, true}, // 同层混用连接符
			{"(a >) && b == {0}", []any{1}, true},       // 分组内条件不完整

			// 参数错误测试
			{"a > {0} && b > {2}", []any{1}, true}, // 参数索引超出范围
			{"a > {-1}", []any{1}, true},           // 负数参数索引
			{"count == {0}", []any{"invalid"}, true}, // 分页参数类型错误
			{"start == {0}", []any{"invalid"}, true}, // 分页参数类型错误
		}

		for _, test := range tests {
			t.Run(fmt.Sprintf("%+v", test), func(t *testing.T) {
				wg := sync.WaitGroup{}
				for range 100 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						defer func() {
							r := recover()
							if test.panic {
								assert.Equal(t, r != nil, true, "错误的表达式应当 panic。")
							} else {
								assert.Equal(t, r == nil, true, "正常的表达式不应当 panic。")
							}
						}()

						filter := Cond(append([]any{test.expr}, test.args...)...)
						assert.NotNil(t, filter, "解析后的条件实例应当不为空。")

						if _, cached := exprParserCache.Load(test.expr); !cached {
							assert.Fail(t, "解析后的表达式结构应当被缓存。")
						}
					}()
				}
				wg.Wait()
			})
		}
	})

	t.Run("Semantics", func(t *testing.T) {
		defer exprParserCache.Clear()
		exprParserCache.Clear()

		t.Run("Values", func(t *testing.T) {
			filter := Cond("age > {0} && name like {1}", 18, "Ada%")
			assert.Equal(t, 2, filter.Size(), "条件集合应当有两个条目。")
			assert.Equal(t, false, filter.Or, "条件集合的连接应当为 and。")

			filter.Each(func(index int, entry any) bool {
				condition := entry.(*Condition)
				switch index {
				case 0:
					assert.Equal(t, "age", condition.Field, "首个条件的字段应当为 age。")
					assert.Equal(t, OpGt, condition.Operator, "首个条件的操作符应当为 gt。")
					assert.Equal(t, 18, condition.Value(), "首个条件的值应当为 18。")
				case 1:
					assert.Equal(t, "name", condition.Field, "第二个条件的字段应当为 name。")
					assert.Equal(t, OpLike, condition.Operator, "第二个条件的操作符应当为 like。")
					assert.Equal(t, "Ada%", condition.Value(), "第二个条件的值应当为 Ada%。")
				}
				return true
			})
		})

		t.Run("Or", func(t *testing.T) {
			filter := Cond("a == {0} || b == {1}", 1, 2)
			assert.Equal(t, true, filter.Or, "条件集合的连接应当为 or。")
		})

		t.Run("Group", func(t *testing.T) {
			filter := Cond("a == {0} || (b == {1} && c == {2})", 1, 2, 3)
			assert.Equal(t, 2, filter.Size(), "条件集合应当有两个条目。")
			assert.Equal(t, true, filter.Or, "外层的连接应当为 or。")

			found := false
			filter.Each(func(index int, entry any) bool {
				if group, ok := entry.(*Filter); ok {
					found = true
					assert.Equal(t, 2, group.Size(), "嵌套分组应当有两个条目。")
					assert.Equal(t, false, group.Or, "嵌套分组的连接应当为 and。")
				}
				return true
			})
			assert.True(t, found, "条件集合应当包含嵌套分组。")
		})

		t.Run("Binding", func(t *testing.T) {
			filter := Cond("age > :minAge")
			condition := filter.entries[0].(*Condition)
			assert.Equal(t, Binding("minAge"), condition.Value(), "命名占位符应当解析为 Binding 值。")
		})

		t.Run("Page", func(t *testing.T) {
			filter := Cond("age > {0} && start == {1} && count == {2}", 18, 10, 5)
			assert.Equal(t, 1, filter.Size(), "分页关键字不应当成为条件条目。")
			assert.Equal(t, 10, filter.Start, "分页偏移应当为 10。")
			assert.Equal(t, 5, filter.Count, "分页数量应当为 5。")

			query := NewQuery("Driver").Filter(filter)
			assert.Equal(t, 10, query.Start, "分页偏移应当提升至查询。")
			assert.Equal(t, 5, query.Count, "分页数量应当提升至查询。")
		})

		t.Run("Unary", func(t *testing.T) {
			filter := Cond("deleted nil && name !nil")
			assert.Equal(t, 2, filter.Size(), "条件集合应当有两个条目。")
			first := filter.entries[0].(*Condition)
			assert.Equal(t, OpNil, first.Operator, "首个条件的操作符应当为 nil。")
			assert.Equal(t, 0, len(first.Values), "一元操作符不应当携带值。")
		})
	})
}
