// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

import (
	"github.com/eframework-org/GO.UTIL/XCollect"
	"github.com/eframework-org/GO.UTIL/XString"
)

// Visitor 定义了查询结果的访问器。
// Optimize 为 true 时，访问器收到的是同一个被复用的对象外壳，
// 回调返回后外壳即被下一条记录覆盖，访问器不应持有其引用。
// OnRecord 返回 false 时终止遍历。
type Visitor interface {
	// Optimize 指示是否复用对象外壳。
	Optimize() bool

	// OnRecord 接收一条查询结果。
	OnRecord(obj *Object) bool
}

// Database 是面向对象数据访问的门面。
// 门面将对象图的装配、引用求解与编译缓存收拢在自身，
// 平面的记录读写与查询执行则交由注入的引擎完成。
// 同一实例可被多个 goroutine 共享。
type Database struct {
	name   string        // 数据库名称
	engine Engine        // 存储引擎
	cache  *queryCache   // 编译缓存
	arena  *XCollect.Map // 引用求解场（实体与标识到活动句柄的映射）
}

// NewDatabase 以指定引擎创建数据库门面。
func NewDatabase(name string, engine Engine) *Database {
	return &Database{
		name:   name,
		engine: engine,
		cache:  newQueryCache(name),
		arena:  XCollect.NewMap(),
	}
}

// Name 获取数据库名称。
func (db *Database) Name() string { return db.name }

// Engine 获取底层的存储引擎。
func (db *Database) Engine() Engine { return db.engine }

// Supports 判断底层引擎是否具备指定能力。
func (db *Database) Supports(capability Capability) bool {
	return db.engine.Supports(capability)
}

// Create 创建指定实体的新对象，data 为初始字段。
// 对象在 Save 之前不会触达引擎。
func (db *Database) Create(entity string, data Record) (*Object, error) {
	if XString.IsEmpty(entity) {
		return nil, ErrNilEntity
	}
	return newObject(db, entity, data), nil
}

// Get 按标识获取对象，未命中时返回 nil 对象和 nil 错误。
func (db *Database) Get(entity string, id any) (*Object, error) {
	if XString.IsEmpty(entity) {
		return nil, ErrNilEntity
	}
	if id == nil {
		return nil, ErrNilId
	}
	record, err := db.engine.Get(entity, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}
	obj := loadedObject(db, entity, record, false)
	db.arenaStore(obj)
	return obj, nil
}

// Find 执行查询并返回结果。
// visitor 为 nil 时返回惰性的对象列表，否则结果逐条送入访问器且返回 nil 列表。
func (db *Database) Find(query *Query, visitor Visitor) (*ObjectList, error) {
	result, entity, err := db.query(query, ConstructSelect)
	if err != nil {
		return nil, err
	}

	if visitor == nil {
		return newEntityList(db, entity, result.Records), nil
	}

	var shell *Object
	if visitor.Optimize() {
		shell = loadedObject(db, entity, nil, false)
	}
	for _, record := range result.Records {
		var obj *Object
		if shell != nil {
			shell.document = record
			obj = shell
		} else {
			obj = loadedObject(db, entity, record, false)
		}
		if !visitor.OnRecord(obj) {
			break
		}
	}
	return nil, nil
}

// FindOne 执行查询并返回首条结果，未命中时返回 nil 对象和 nil 错误。
// 查询在内部的副本上强制单条分页，调用方的查询不被修改。
func (db *Database) FindOne(query *Query) (*Object, error) {
	if query == nil {
		return nil, ErrNilQuery
	}
	one := query.Clone()
	one.Count = 1
	result, entity, err := db.query(one, ConstructSelect)
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, nil
	}
	obj := loadedObject(db, entity, result.Records[0], false)
	db.arenaStore(obj)
	return obj, nil
}

// Delete 按标识删除对象，返回删除的记录数。
func (db *Database) Delete(entity string, id any) (int, error) {
	if XString.IsEmpty(entity) {
		return 0, ErrNilEntity
	}
	if id == nil {
		return 0, ErrNilId
	}
	affected, err := db.engine.Delete(entity, id)
	if err != nil {
		return 0, err
	}
	db.arenaRemove(entity, id)
	return affected, nil
}

// DeleteBy 按查询条件批量删除，返回删除的记录数。
func (db *Database) DeleteBy(query *Query) (int, error) {
	result, _, err := db.query(query, ConstructDelete)
	if err != nil {
		return 0, err
	}
	return int(result.Affected), nil
}

// Count 统计查询命中的记录数，query 的条件可为空。
func (db *Database) Count(query *Query) (int64, error) {
	if query == nil {
		return 0, ErrNilQuery
	}
	if XString.IsEmpty(query.Entity) {
		return 0, ErrNilEntity
	}
	if query.Where.Size() == 0 {
		return db.engine.Count(query.Entity, nil, nil)
	}
	compiled, err := db.compile(query, ConstructSelect)
	if err != nil {
		return 0, err
	}
	return db.engine.Count(query.Entity, compiled, query.Bindings)
}

// Pop 执行查询并逐条送入访问器，被访问的对象随即被删除。
// 访问器为 nil 时命中的记录仅被删除，返回删除的记录数。
func (db *Database) Pop(query *Query, visitor Visitor) (int, error) {
	result, entity, err := db.query(query, ConstructSelect)
	if err != nil {
		return 0, err
	}

	popped := 0
	for _, record := range result.Records {
		obj := loadedObject(db, entity, record, false)
		if visitor != nil && !visitor.OnRecord(obj) {
			break
		}
		if _, err := db.engine.Delete(entity, record[IdKey]); err != nil {
			return popped, err
		}
		db.arenaRemove(entity, record[IdKey])
		popped++
	}
	return popped, nil
}

// PopOne 执行查询并返回首条结果，该结果随即被删除。
func (db *Database) PopOne(query *Query) (*Object, error) {
	obj, err := db.FindOne(query)
	if err != nil || obj == nil {
		return obj, err
	}
	if _, err := db.engine.Delete(obj.entity, obj.RawId()); err != nil {
		return nil, err
	}
	db.arenaRemove(obj.entity, obj.RawId())
	obj.persistent = false
	return obj, nil
}

// Bulk 批量写入多个实体的记录。
// 引擎支持事务时批量写入是原子的。返回各实体的写入总数，
// 形如 {"Driver": {"totalCount": 2}}。
func (db *Database) Bulk(data map[string][]Record) (Record, error) {
	trx := db.engine.Supports(CapabilityTrx)
	if trx {
		if err := db.engine.Trx(); err != nil {
			return nil, err
		}
	}

	totals := make(Record, len(data))
	for entity, records := range data {
		count := 0
		for _, record := range records {
			if _, err := db.engine.Insert(entity, record); err != nil {
				if trx {
					db.engine.Rollback()
				}
				return nil, err
			}
			count++
		}
		totals[entity] = Record{TotalKey: count}
	}

	if trx {
		if err := db.engine.Commit(); err != nil {
			return nil, err
		}
	}
	return totals, nil
}

// Increment 原子地对对象的数值字段加上增量并返回新值。
func (db *Database) Increment(entity string, id any, field string, delta int) (int, error) {
	if XString.IsEmpty(entity) {
		return 0, ErrNilEntity
	}
	if id == nil {
		return 0, ErrNilId
	}
	return db.engine.Increment(entity, id, field, delta)
}

// Trx 开启事务。
func (db *Database) Trx() error { return db.engine.Trx() }

// Commit 提交事务。
func (db *Database) Commit() error { return db.engine.Commit() }

// Rollback 回滚事务。
func (db *Database) Rollback() error { return db.engine.Rollback() }

// CreateEntity 创建实体并登记字段定义。
func (db *Database) CreateEntity(entity string, fields ...Field) error {
	if XString.IsEmpty(entity) {
		return ErrNilEntity
	}
	return db.engine.CreateEntity(entity, fields...)
}

// IsEntity 判断实体是否存在。
func (db *Database) IsEntity(entity string) (bool, error) {
	if XString.IsEmpty(entity) {
		return false, ErrNilEntity
	}
	return db.engine.IsEntity(entity)
}

// Drop 删除实体及其全部记录。
func (db *Database) Drop(entity string) error {
	if XString.IsEmpty(entity) {
		return ErrNilEntity
	}
	return db.engine.Drop(entity)
}

// Describe 获取数据库的描述信息。
func (db *Database) Describe() (Record, error) {
	return db.engine.Describe()
}

// compile 编译查询，满足缓存不变式的查询命中或填充编译缓存。
func (db *Database) compile(query *Query, construct Construct) (CompiledQuery, error) {
	if query.Construct == "" {
		query.Construct = construct
	}
	if query.Cacheable() {
		if compiled := db.cache.Load(query.Construct, query.Name); compiled != nil {
			return compiled, nil
		}
	}
	compiled, err := db.engine.Compile(query)
	if err != nil {
		return nil, err
	}
	compileCounter.WithLabelValues(db.name, string(query.Construct)).Inc()
	if query.Cacheable() {
		db.cache.Store(query.Construct, query.Name, compiled)
	}
	return compiled, nil
}

// query 编译并执行查询，返回结果与目标实体。
// 实体名称取自查询，构造类型缺失时由调用方补充，查询在副本上修改。
func (db *Database) query(query *Query, construct Construct) (*Result, string, error) {
	if query == nil {
		return nil, "", ErrNilQuery
	}
	if XString.IsEmpty(query.Entity) {
		return nil, "", ErrNilEntity
	}
	run := query.Clone()
	run.Construct = construct
	compiled, err := db.compile(run, construct)
	if err != nil {
		return nil, "", err
	}
	result, err := db.engine.Execute(run.Entity, construct, compiled, run.Bindings)
	if err != nil {
		return nil, "", err
	}
	return result, run.Entity, nil
}

// resolveReference 将实体与标识求解为活动的对象句柄。
// 同一实体与标识在门面内共享同一个句柄，句柄以局部状态创建，
// 读取其字段时会按需补全。
func (db *Database) resolveReference(entity string, id any) *Object {
	key := entity + "@" + db.engine.FormatId(id)
	if value, ok := db.arena.Load(key); ok {
		return value.(*Object)
	}
	obj := loadedObject(db, entity, Record{IdKey: id}, true)
	actual, _ := db.arena.LoadOrStore(key, obj)
	return actual.(*Object)
}

// arenaStore 将对象登记至求解场。
func (db *Database) arenaStore(obj *Object) {
	id, ok := obj.document[IdKey]
	if !ok || id == nil {
		return
	}
	db.arena.Store(obj.entity+"@"+db.engine.FormatId(id), obj)
}

// arenaRemove 将实体与标识从求解场移除。
func (db *Database) arenaRemove(entity string, id any) {
	if id == nil {
		return
	}
	db.arena.Delete(entity + "@" + db.engine.FormatId(id))
}
