// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

// Capability 标识引擎的可选能力。
type Capability string

const (
	CapabilityTrx       Capability = "trx"       // 事务
	CapabilityIncrement Capability = "increment" // 原子自增
	CapabilityFullText  Capability = "fulltext"  // 全文检索
)

// Type 标识实体字段的数据类型。
type Type string

const (
	TypeBoolean Type = "boolean" // 布尔
	TypeInteger Type = "integer" // 整数
	TypeLong    Type = "long"    // 长整数
	TypeFloat   Type = "float"   // 单精度浮点
	TypeDouble  Type = "double"  // 双精度浮点
	TypeString  Type = "string"  // 字符串
	TypeDate    Type = "date"    // 日期时间
	TypeBinary  Type = "binary"  // 二进制
	TypeObject  Type = "object"  // 嵌套对象
)

// Field 描述实体的单个字段。
type Field struct {
	Name     string // 字段名称
	Type     Type   // 数据类型
	Required bool   // 是否必填
	Unique   bool   // 是否唯一
}

// Result 表示一次查询执行的结果。
type Result struct {
	Records  []Record // 命中的记录集
	Affected int64    // 受影响的记录数
}

// Engine 定义了后端存储引擎的操作契约。
// 引擎只处理平面的记录读写与查询执行，对象图的装配、
// 脏跟踪和引用级联均由上层的 Database 与 Object 负责。
type Engine interface {
	// Name 获取引擎名称。
	Name() string

	// Supports 判断引擎是否具备指定能力。
	Supports(capability Capability) bool

	// CreateEntity 创建实体并登记字段定义，实体已存在时仅登记字段。
	CreateEntity(entity string, fields ...Field) error

	// IsEntity 判断实体是否存在。
	IsEntity(entity string) (bool, error)

	// Drop 删除实体及其全部记录。
	Drop(entity string) error

	// Get 按标识获取单条记录，未命中时返回 nil 记录和 nil 错误。
	Get(entity string, id any) (Record, error)

	// Insert 写入新记录并返回生成或指定的标识。
	Insert(entity string, data Record) (any, error)

	// Update 按标识更新记录，set 为待写入的字段，unset 为待移除的字段。
	Update(entity string, id any, set Record, unset []string) error

	// Delete 按标识删除记录，返回删除的记录数。
	Delete(entity string, id any) (int, error)

	// Compile 将查询编译为引擎形态的产物，查询自身不被修改。
	Compile(query *Query) (CompiledQuery, error)

	// Execute 执行编译产物，bindings 为本次执行的占位符参数。
	Execute(entity string, construct Construct, compiled CompiledQuery, bindings map[string]any) (*Result, error)

	// Count 统计实体的记录数，query 为 nil 时统计全部。
	Count(entity string, compiled CompiledQuery, bindings map[string]any) (int64, error)

	// Increment 原子地对数值字段加上增量并返回新值。
	Increment(entity string, id any, field string, delta int) (int, error)

	// Trx 开启事务，同一执行流内重复开启是无害的。
	Trx() error

	// Commit 提交事务。
	Commit() error

	// Rollback 回滚事务。
	Rollback() error

	// Describe 获取引擎的描述信息，包含实体清单与记录数。
	Describe() (Record, error)

	// FormatId 将标识格式化为字符串形态。
	FormatId(id any) string
}
