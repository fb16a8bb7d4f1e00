// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

// compileDocumentQuery 是文档编译的测试入口，不依赖活动连接。
func compileDocumentQuery(query *Query) (*documentStatement, error) {
	walker := &documentWalker{}
	if err := WalkQuery(query, walker); err != nil {
		return nil, err
	}
	return &documentStatement{
		construct:  query.Construct,
		filter:     walker.filter,
		sort:       walker.sort,
		projection: walker.projection,
		skip:       walker.skip,
		limit:      walker.limit,
		bindings:   walker.bindings,
	}, nil
}

func TestDocumentCompile(t *testing.T) {
	t.Run("Filter", func(t *testing.T) {
		query := NewQuery("Driver").
			Filter(Cond("age > {0} && name like {1}", 18, "Ada%")).
			OrderBy("name", Asc).
			Page(10, 5)
		statement, err := compileDocumentQuery(query)
		assert.Nil(t, err, "编译正常的查询不应当出错。")

		expected := bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: 18}}}},
			bson.D{{Key: "name", Value: bson.D{{Key: "$regex", Value: "^Ada.*$"}}}},
		}}}
		assert.Equal(t, expected, statement.filter, "编译出的条件树应当与预期一致。")
		assert.Equal(t, bson.D{{Key: "name", Value: 1}}, statement.sort, "编译出的排序应当与预期一致。")
		assert.Equal(t, int64(10), statement.skip, "编译出的偏移应当与预期一致。")
		assert.Equal(t, int64(5), statement.limit, "编译出的数量应当与预期一致。")
	})

	t.Run("Or", func(t *testing.T) {
		query := NewQuery("Driver").Filter(Cond("a == {0} || b == {1}", 1, 2))
		statement, err := compileDocumentQuery(query)
		assert.Nil(t, err, "编译正常的查询不应当出错。")
		assert.Equal(t, "$or", statement.filter[0].Key, "or 连接的条件树应当以 $or 开头。")
	})

	t.Run("Appenders", func(t *testing.T) {
		tests := []struct {
			filter   *Filter
			expected bson.D
		}{
			{
				NewFilter().Add("age", OpBtw, 18, 30),
				bson.D{{Key: "age", Value: bson.D{{Key: "$gte", Value: 18}, {Key: "$lte", Value: 30}}}},
			},
			{
				NewFilter().Add("status", OpIn, []any{"a", "b"}),
				bson.D{{Key: "status", Value: bson.D{{Key: "$in", Value: []any{"a", "b"}}}}},
			},
			{
				NewFilter().Add("deleted", OpNil),
				bson.D{{Key: "deleted", Value: bson.D{{Key: "$eq", Value: nil}}}},
			},
			{
				NewFilter().Add("name", OpNnil),
				bson.D{{Key: "name", Value: bson.D{{Key: "$ne", Value: nil}}}},
			},
			{
				NewFilter().Add("text", OpFtq, "roadster"),
				bson.D{{Key: "$text", Value: bson.D{{Key: "$search", Value: "roadster"}}}},
			},
			{
				NewFilter().Add("name", OpRegex, "^A"),
				bson.D{{Key: "name", Value: bson.D{{Key: "$regex", Value: "^A"}}}},
			},
		}

		for _, test := range tests {
			statement, err := compileDocumentQuery(NewQuery("Driver").Filter(test.filter))
			assert.Nil(t, err, "编译正常的查询不应当出错。")
			items := statement.filter[0].Value.(bson.A)
			assert.Equal(t, test.expected, items[0], "编译出的条件项应当与预期一致。")
		}
	})

	t.Run("Fallback", func(t *testing.T) {
		// 未登记的操作符由默认策略按相等匹配兜底
		statement, err := compileDocumentQuery(NewQuery("Driver").
			Filter(NewFilter().Add("name", Operator("unknown"), "Ada")))
		assert.Nil(t, err, "编译未登记的操作符不应当出错。")
		items := statement.filter[0].Value.(bson.A)
		assert.Equal(t, bson.D{{Key: "name", Value: bson.D{{Key: "$eq", Value: "Ada"}}}},
			items[0], "未登记的操作符应当退化为相等匹配。")
	})

	t.Run("Bind", func(t *testing.T) {
		query := NewQuery("Driver").Filter(Cond("age > :minAge"))
		statement, err := compileDocumentQuery(query)
		assert.Nil(t, err, "编译正常的查询不应当出错。")

		bound, err := statement.Bind(map[string]any{"minAge": 18})
		assert.Nil(t, err, "提供全部参数的绑定不应当出错。")
		items := bound.(bson.D)[0].Value.(bson.A)
		assert.Equal(t, bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: 18}}}},
			items[0], "绑定后的条件树应当替换占位符。")

		raw := statement.filter[0].Value.(bson.A)
		assert.Equal(t, Binding("minAge"), raw[0].(bson.D)[0].Value.(bson.D)[0].Value,
			"绑定不应当修改编译产物自身。")

		_, err = statement.Bind(nil)
		assert.True(t, errors.Is(err, ErrUnboundParameter), "缺失参数的绑定应当出错。")
	})

	t.Run("Projection", func(t *testing.T) {
		statement, err := compileDocumentQuery(NewQuery("Driver").Select("name", "age"))
		assert.Nil(t, err, "编译正常的查询不应当出错。")
		assert.Equal(t, bson.D{{Key: "name", Value: 1}, {Key: "age", Value: 1}},
			statement.projection, "编译出的投影应当与预期一致。")
	})
}
