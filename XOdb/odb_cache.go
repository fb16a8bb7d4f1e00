// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

import (
	"fmt"

	"github.com/eframework-org/GO.UTIL/XCollect"
)

// queryCache 缓存命名查询的编译产物。
// 键为构造类型和查询名称的组合，同名不同构造的查询互不冲突。
// 每个数据库实例持有独立的缓存，实例间互不可见。
type queryCache struct {
	database string       // 所属数据库名称
	entries  *XCollect.Map // 编译产物映射
}

// newQueryCache 创建查询缓存。
func newQueryCache(database string) *queryCache {
	return &queryCache{database: database, entries: XCollect.NewMap()}
}

// cacheKey 生成缓存键。
func (c *queryCache) cacheKey(construct Construct, name string) string {
	return fmt.Sprintf("%v@%v", construct, name)
}

// Load 获取编译产物，未命中时返回 nil。
func (c *queryCache) Load(construct Construct, name string) CompiledQuery {
	if value, ok := c.entries.Load(c.cacheKey(construct, name)); ok {
		cacheHitCounter.WithLabelValues(c.database).Inc()
		return value.(CompiledQuery)
	}
	cacheMissCounter.WithLabelValues(c.database).Inc()
	return nil
}

// Store 存入编译产物。
func (c *queryCache) Store(construct Construct, name string, compiled CompiledQuery) {
	c.entries.Store(c.cacheKey(construct, name), compiled)
}

// Size 获取缓存条目数量。
func (c *queryCache) Size() int {
	count := 0
	c.entries.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}

// Clear 清空缓存。
func (c *queryCache) Clear() {
	c.entries.Range(func(key, value any) bool {
		c.entries.Delete(key)
		return true
	})
}
