// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// compileCounter 记录查询编译的总数，按数据库和构造类型分组。
	compileCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xodb_query_compile_total",
		Help: "Total number of query compilations.",
	}, []string{"database", "construct"})

	// cacheHitCounter 记录编译缓存命中的总数。
	cacheHitCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xodb_query_cache_hit_total",
		Help: "Total number of compiled query cache hits.",
	}, []string{"database"})

	// cacheMissCounter 记录编译缓存未命中的总数。
	cacheMissCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xodb_query_cache_miss_total",
		Help: "Total number of compiled query cache misses.",
	}, []string{"database"})

	// objectSaveCounter 记录对象保存的总数，按数据库和实体分组。
	objectSaveCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xodb_object_save_total",
		Help: "Total number of object saves.",
	}, []string{"database", "entity"})
)

func init() {
	prometheus.MustRegister(compileCounter, cacheHitCounter, cacheMissCounter, objectSaveCounter)
}

// metricsInfo 定义了全局的统计信息。
type metricsInfo struct{}

var sharedMetrics = &metricsInfo{}

// Metrics 提供了统计信息的全局访问点。
func Metrics() *metricsInfo {
	return sharedMetrics
}

// Compile 获取查询编译的计数器。
func (m *metricsInfo) Compile() *prometheus.CounterVec { return compileCounter }

// CacheHit 获取编译缓存命中的计数器。
func (m *metricsInfo) CacheHit() *prometheus.CounterVec { return cacheHitCounter }

// CacheMiss 获取编译缓存未命中的计数器。
func (m *metricsInfo) CacheMiss() *prometheus.CounterVec { return cacheMissCounter }

// ObjectSave 获取对象保存的计数器。
func (m *metricsInfo) ObjectSave() *prometheus.CounterVec { return objectSaveCounter }
