// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// countingEngine 包装引擎并统计编译次数。
type countingEngine struct {
	Engine
	compiles int32
}

func (e *countingEngine) Compile(query *Query) (CompiledQuery, error) {
	atomic.AddInt32(&e.compiles, 1)
	return e.Engine.Compile(query)
}

func TestQueryCache(t *testing.T) {
	base := SetupOdbTest()
	defer ResetOdbTest("CacheTest")

	for i := 1; i <= 5; i++ {
		obj, _ := base.Create("CacheTest", Record{"seq": i})
		assert.Nil(t, obj.Save(), "保存对象不应当出错。")
	}

	engine := &countingEngine{Engine: base.Engine()}
	db := NewDatabase("cache_test", engine)

	t.Run("Named", func(t *testing.T) {
		query := NewQuery("CacheTest").
			Filter(Cond("seq > :min")).
			Named("cache.bySeq").
			Bind("min", 2)
		assert.True(t, query.Cacheable(), "命名查询应当满足缓存不变式。")

		list, err := db.Find(query, nil)
		assert.Nil(t, err, "执行查询不应当出错。")
		assert.Equal(t, 3, list.Size(), "首次执行应当命中指定数量。")
		assert.Equal(t, int32(1), atomic.LoadInt32(&engine.compiles), "首次执行应当触发编译。")
		assert.Equal(t, 1, db.cache.Size(), "编译产物应当被缓存。")

		rebound := NewQuery("CacheTest").
			Filter(Cond("seq > :min")).
			Named("cache.bySeq").
			Bind("min", 4)
		list, err = db.Find(rebound, nil)
		assert.Nil(t, err, "重复执行不应当出错。")
		assert.Equal(t, 1, list.Size(), "重复执行应当按新参数命中。")
		assert.Equal(t, int32(1), atomic.LoadInt32(&engine.compiles), "重复执行不应当再次编译。")

		assert.Equal(t, float64(1), testutil.ToFloat64(cacheHitCounter.WithLabelValues("cache_test")), "缓存命中应当被统计。")
	})

	t.Run("Anonymous", func(t *testing.T) {
		before := atomic.LoadInt32(&engine.compiles)
		query := NewQuery("CacheTest").Filter(Cond("seq > {0}", 2))
		assert.False(t, query.Cacheable(), "匿名查询不应当满足缓存不变式。")

		_, err := db.Find(query, nil)
		assert.Nil(t, err, "执行查询不应当出错。")
		_, err = db.Find(query, nil)
		assert.Nil(t, err, "重复执行不应当出错。")
		assert.Equal(t, before+2, atomic.LoadInt32(&engine.compiles), "匿名查询应当逐次编译。")
	})

	t.Run("Construct", func(t *testing.T) {
		// 同名不同构造的查询互不冲突
		cache := newQueryCache("construct_test")
		cache.Store(ConstructSelect, "same", &recordStatement{sql: "select"})
		cache.Store(ConstructDelete, "same", &recordStatement{sql: "delete"})
		assert.Equal(t, 2, cache.Size(), "不同构造的同名查询应当分别缓存。")

		selected := cache.Load(ConstructSelect, "same").(*recordStatement)
		assert.Equal(t, "select", selected.sql, "读取的产物应当与构造匹配。")
	})

	t.Run("Concurrent", func(t *testing.T) {
		wg := sync.WaitGroup{}
		for i := range 50 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				query := NewQuery("CacheTest").
					Filter(Cond("seq > :min")).
					Named("cache.bySeq").
					Bind("min", i%5)
				list, err := db.Find(query, nil)
				assert.Nil(t, err, "并发执行不应当出错。")
				assert.Equal(t, 5-i%5, list.Size(), "并发执行应当按各自参数命中。")
			}(i)
		}
		wg.Wait()
	})

	t.Run("Isolation", func(t *testing.T) {
		// 门面实例间的缓存互不可见
		other := NewDatabase("cache_other", base.Engine())
		assert.Equal(t, 0, other.cache.Size(), "新门面的缓存应当为空。")
	})
}
