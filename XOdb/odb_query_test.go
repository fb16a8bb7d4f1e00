// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuery(t *testing.T) {
	t.Run("Builder", func(t *testing.T) {
		query := NewQuery("Driver").
			Filter(NewFilter().Add("age", OpGt, 18)).
			OrderBy("name", Asc).
			Select("name", "age").
			Page(10, 5)

		assert.Equal(t, "Driver", query.Entity, "查询的实体应当与声明一致。")
		assert.Equal(t, ConstructSelect, query.Construct, "默认的构造类型应当为 select。")
		assert.Equal(t, 1, query.Where.Size(), "查询条件应当与声明一致。")
		assert.Equal(t, 10, query.Start, "分页偏移应当与声明一致。")
		assert.Equal(t, 5, query.Count, "分页数量应当与声明一致。")
	})

	t.Run("Cacheable", func(t *testing.T) {
		assert.False(t, NewQuery("Driver").Cacheable(), "匿名查询不应当可缓存。")
		assert.True(t, NewQuery("Driver").Named("q").Cacheable(), "命名查询应当可缓存。")
		assert.False(t, NewQuery("").Named("q").Cacheable(), "无实体的查询不应当可缓存。")

		nocache := NewQuery("Driver").Named("q")
		nocache.CacheMeta = false
		assert.False(t, nocache.Cacheable(), "关闭缓存标记的查询不应当可缓存。")
	})

	t.Run("Clone", func(t *testing.T) {
		query := NewQuery("Driver").Page(0, 10)
		clone := query.Clone()
		clone.Count = 1
		assert.Equal(t, 10, query.Count, "副本的修改不应当影响原查询。")
	})

	t.Run("Parse", func(t *testing.T) {
		query := ParseQuery(map[string]any{
			EntityKey:   "Driver",
			"name":      "drivers.byName",
			"construct": "select",
			"cache":     true,
			"start":     10,
			"count":     5,
			"select":    []any{"name", "age"},
			"where": map[string]any{
				"name": map[string]any{"op": "like", "value": "Ada%"},
				"age":  30,
			},
			"orderBy": []any{"name", "-age"},
		}, map[string]any{"p": 1})

		assert.Equal(t, "Driver", query.Entity, "解析的实体应当与声明一致。")
		assert.Equal(t, "drivers.byName", query.Name, "解析的名称应当与声明一致。")
		assert.True(t, query.Cacheable(), "解析的命名查询应当可缓存。")
		assert.Equal(t, 10, query.Start, "解析的分页偏移应当与声明一致。")
		assert.Equal(t, 5, query.Count, "解析的分页数量应当与声明一致。")
		assert.Equal(t, []string{"name", "age"}, query.Fields, "解析的投影应当与声明一致。")
		assert.Equal(t, 2, query.Where.Size(), "解析的条件数量应当与声明一致。")
		assert.Equal(t, 2, len(query.Order), "解析的排序数量应当与声明一致。")
		assert.Equal(t, Desc, query.Order[1].Direction, "前缀为负号的排序应当为降序。")
		assert.Equal(t, 1, query.Bindings["p"], "解析的命名参数应当与声明一致。")

		// 字段按名称排序以保证编译形态稳定
		first := query.Where.entries[0].(*Condition)
		assert.Equal(t, "age", first.Field, "解析的条件应当按字段名称排序。")
		assert.Equal(t, OpEq, first.Operator, "标量值的条件应当为相等匹配。")
	})

	t.Run("ParseGroup", func(t *testing.T) {
		query := ParseQuery(map[string]any{
			EntityKey: "Driver",
			"where": map[string]any{
				"age": 30,
				"or": map[string]any{
					"status": "active",
					"vip":    true,
				},
			},
		}, nil)

		found := false
		query.Where.Each(func(index int, entry any) bool {
			if group, ok := entry.(*Filter); ok {
				found = true
				assert.True(t, group.Or, "or 键的分组应当以 or 连接。")
				assert.Equal(t, 2, group.Size(), "分组的条件数量应当与声明一致。")
			}
			return true
		})
		assert.True(t, found, "解析的条件应当包含嵌套分组。")
	})

	t.Run("Validate", func(t *testing.T) {
		assert.Nil(t, NewFilter().Add("age", OpBtw, 1, 2).Validate(), "完整的区间条件应当通过校验。")
		assert.True(t, errors.Is(NewFilter().Add("age", OpBtw, 1).Validate(), ErrMalformedCondition), "缺值的区间条件应当校验失败。")
		assert.True(t, errors.Is(NewFilter().Add("age", OpNil, 1).Validate(), ErrMalformedCondition), "携带值的一元条件应当校验失败。")
		assert.True(t, errors.Is(NewFilter().Add("", OpEq, 1).Validate(), ErrMalformedCondition), "无字段的条件应当校验失败。")
		assert.Nil(t, NewFilter().Add("", OpFtq, "text").Validate(), "全文检索可不指定字段。")
	})
}
