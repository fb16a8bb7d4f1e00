// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchema(t *testing.T) {
	db := SetupOdbTest()

	t.Run("Minimal", func(t *testing.T) {
		defer ResetOdbTest("Driver")

		driver, _ := db.Create("Driver", Record{"name": "Ada", "age": 30})
		assert.Nil(t, driver.Save(), "保存对象不应当出错。")

		out, err := driver.ToJson(MinimalSchema)
		assert.Nil(t, err, "序列化不应当出错。")
		assert.Equal(t, "Driver", out[EntityKey], "最小形态应当包含实体标记。")
		assert.Equal(t, driver.Id(), out[IdKey], "最小形态应当包含标识。")
		assert.Equal(t, 2, len(out), "最小形态不应当包含其它字段。")
	})

	t.Run("Simple", func(t *testing.T) {
		defer ResetOdbTest("Driver", "Car")

		car, _ := db.Create("Car", Record{"model": "Roadster"})
		driver, _ := db.Create("Driver", Record{"name": "Ada"})
		driver.Set("car", car)
		assert.Nil(t, driver.Save(), "保存对象不应当出错。")

		out, err := driver.ToJson(SimpleSchema)
		assert.Nil(t, err, "序列化不应当出错。")
		assert.Equal(t, "Ada", out["name"], "标量字段应当输出。")

		ref, ok := out["car"].(map[string]any)
		assert.True(t, ok, "引用字段应当退化为最小形态。")
		assert.Equal(t, "Car", ref[EntityKey], "最小形态应当包含实体标记。")
		assert.Equal(t, car.Id(), ref[IdKey], "最小形态应当包含标识。")
		assert.Nil(t, ref["model"], "最小形态不应当包含其它字段。")
	})

	t.Run("All", func(t *testing.T) {
		defer ResetOdbTest("Driver", "Car")

		car, _ := db.Create("Car", Record{"model": "Roadster", "year": 2024})
		driver, _ := db.Create("Driver", Record{"name": "Ada"})
		driver.Set("car", car)
		assert.Nil(t, driver.Save(), "保存对象不应当出错。")

		out, err := driver.ToJson(&Schema{
			Strategy: FetchAll,
			Relations: map[string]*Schema{
				"car": {Strategy: FetchAll},
			},
		})
		assert.Nil(t, err, "序列化不应当出错。")

		ref, ok := out["car"].(map[string]any)
		assert.True(t, ok, "引用字段应当按子模式展开。")
		assert.Equal(t, "Roadster", ref["model"], "子模式的字段应当输出。")

		// 缺失子模式的关系字段按最小形态输出
		fallback, err := driver.ToJson(AllSchema)
		assert.Nil(t, err, "序列化不应当出错。")
		minimal := fallback["car"].(map[string]any)
		assert.Nil(t, minimal["model"], "缺失子模式的引用应当退化为最小形态。")
		assert.Equal(t, car.Id(), minimal[IdKey], "最小形态应当包含标识。")
	})

	t.Run("Date", func(t *testing.T) {
		defer ResetOdbTest("Event")

		event, _ := db.Create("Event", Record{
			"at": time.Date(2026, 1, 2, 3, 4, 5, 60000000, time.FixedZone("CST", 8*3600)),
		})
		event.UseDefaultFields(false)

		out, err := event.ToJson(AllSchema)
		assert.Nil(t, err, "序列化不应当出错。")
		assert.Equal(t, "2026-01-01T19:04:05.060Z", out["at"], "日期应当输出为 UTC 的统一格式。")
	})

	t.Run("Fields", func(t *testing.T) {
		obj, _ := db.Create("FieldsTest", Record{"a": 1, "b": 2, "c": 3})

		out, err := obj.ToJson(&Schema{Strategy: FetchAll, Fields: []string{"a", "b"}})
		assert.Nil(t, err, "序列化不应当出错。")
		assert.Equal(t, 1, out["a"], "白名单字段应当输出。")
		assert.Nil(t, out["c"], "白名单外的字段不应当输出。")

		out, err = obj.ToJson(&Schema{Strategy: FetchAll, Exclude: []string{"b"}})
		assert.Nil(t, err, "序列化不应当出错。")
		assert.Equal(t, 1, out["a"], "未排除的字段应当输出。")
		assert.Nil(t, out["b"], "被排除的字段不应当输出。")
	})

	t.Run("ListRelation", func(t *testing.T) {
		defer ResetOdbTest("Driver")

		driver, _ := db.Create("Driver", Record{"name": "Ada"})
		driver.document["cars"] = []any{
			Record{EntityKey: "Car", IdKey: "x", "model": "Roadster"},
			Record{EntityKey: "Car", IdKey: "y", "model": "Wagon"},
		}

		out, err := driver.ToJson(SimpleSchema)
		assert.Nil(t, err, "序列化不应当出错。")
		summary, ok := out["cars"].(map[string]any)
		assert.True(t, ok, "标量形态的列表应当退化为总数。")
		assert.Equal(t, 2, summary[TotalKey], "列表总数应当与元素数量一致。")

		out, err = driver.ToJson(&Schema{
			Strategy: FetchAll,
			Relations: map[string]*Schema{
				"cars": {Strategy: FetchAll},
			},
		})
		assert.Nil(t, err, "序列化不应当出错。")
		items, ok := out["cars"].([]any)
		assert.True(t, ok, "完整形态的列表应当逐项展开。")
		assert.Equal(t, 2, len(items), "列表应当输出全部元素。")
	})
}
