// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

import (
	"time"

	"github.com/eframework-org/GO.UTIL/XString"
)

// Object 表示一个受管的数据对象。
// 对象跟踪自身的持久状态（是否已落库）、加载状态（完整或局部）
// 以及字段级的变更集，保存时仅写回发生变更的字段。
// 值为其它对象的字段以引用描述符的形式落库，读取时惰性解析为子对象，
// 保存时先深度优先保存子对象，再写回描述符。
type Object struct {
	db         *Database          // 所属数据库
	entity     string             // 实体名称
	persistent bool               // 是否已落库
	partial    bool               // 是否为局部加载
	saving     bool               // 保存中标识（引用环保护）
	timestamp  bool               // 保存时是否维护时间戳
	document   Record             // 当前已知的字段状态
	delta      Record             // 待写回的字段变更
	erased     map[string]bool    // 待移除的字段
	refs       map[string]*Object // 引用字段的活动子对象
}

// newObject 创建受管对象。data 为初始字段，经由 Set 逐一分类。
func newObject(db *Database, entity string, data Record) *Object {
	obj := &Object{
		db:        db,
		entity:    entity,
		timestamp: true,
		document:  make(Record),
		delta:     make(Record),
		erased:    make(map[string]bool),
		refs:      make(map[string]*Object),
	}
	for key, value := range data {
		obj.Set(key, value)
	}
	return obj
}

// loadedObject 以引擎返回的记录创建对象，partial 标识记录是否仅含标识。
// 记录原样进入对象状态，引用描述符在读取时才被解析。
func loadedObject(db *Database, entity string, record Record, partial bool) *Object {
	obj := &Object{
		db:         db,
		entity:     entity,
		persistent: true,
		partial:    partial,
		timestamp:  true,
		document:   make(Record, len(record)),
		delta:      make(Record),
		erased:     make(map[string]bool),
		refs:       make(map[string]*Object),
	}
	for key, value := range record {
		obj.document[key] = value
	}
	return obj
}

// Entity 获取对象的实体名称。
func (o *Object) Entity() string { return o.entity }

// Id 获取对象标识的字符串形态，未落库且未指定标识时返回空字符串。
func (o *Object) Id() string {
	id, ok := o.document[IdKey]
	if !ok || id == nil {
		return ""
	}
	return o.db.engine.FormatId(id)
}

// RawId 获取对象标识的引擎形态。
func (o *Object) RawId() any { return o.document[IdKey] }

// Persistent 判断对象是否已落库。
func (o *Object) Persistent() bool { return o.persistent }

// Partial 判断对象是否为局部加载。
func (o *Object) Partial() bool { return o.partial }

// Dirty 判断对象是否存在待写回的变更。
func (o *Object) Dirty() bool { return len(o.delta) > 0 || len(o.erased) > 0 }

// UseDefaultFields 设置保存时是否维护默认字段（时间戳），默认维护。
func (o *Object) UseDefaultFields(value bool) *Object {
	o.timestamp = value
	return o
}

// Set 写入字段值。写入即分类：
//   - 值为 nil 时等价于 Remove
//   - 值为 *Object 时登记为引用字段
//   - 值为含实体标记的映射时解析或创建子对象并登记为引用字段
//   - 值为列表时原样嵌入，元素中的 *Object 展开为其字段状态
//   - 其余标量与时间原样写入
func (o *Object) Set(key string, value any) *Object {
	if XString.IsEmpty(key) {
		return o
	}
	if key == EntityKey {
		o.entity = XString.Format("%v", value)
		return o
	}
	if value == nil {
		return o.Remove(key)
	}

	switch v := value.(type) {
	case *Object:
		o.refs[key] = v
		o.document[key] = v
		o.delta[key] = v
	case Record:
		if child := o.resolveChild(v); child != nil {
			o.refs[key] = child
			o.document[key] = child
			o.delta[key] = child
		} else {
			o.document[key] = v
			o.delta[key] = v
		}
	case []any:
		embedded := embedList(v)
		o.document[key] = embedded
		o.delta[key] = embedded
	default:
		o.document[key] = value
		o.delta[key] = value
	}
	delete(o.erased, key)
	return o
}

// resolveChild 从含实体标记的映射解析子对象。
// 带标识时解析为既有对象的局部句柄，否则以余下字段创建新对象。
func (o *Object) resolveChild(value Record) *Object {
	entity, ok := value[EntityKey].(string)
	if !ok || XString.IsEmpty(entity) {
		return nil
	}
	if id, exist := value[IdKey]; exist && id != nil {
		return o.db.resolveReference(entity, id)
	}
	fields := make(Record, len(value))
	for k, v := range value {
		if k == EntityKey {
			continue
		}
		fields[k] = v
	}
	return newObject(o.db, entity, fields)
}

// embedList 展开列表元素，*Object 元素退化为其字段状态的快照。
func embedList(values []any) []any {
	embedded := make([]any, 0, len(values))
	for _, item := range values {
		if child, ok := item.(*Object); ok {
			embedded = append(embedded, child.snapshot())
			continue
		}
		embedded = append(embedded, item)
	}
	return embedded
}

// snapshot 获取对象字段状态的记录形态，引用字段退化为描述符。
func (o *Object) snapshot() Record {
	record := make(Record, len(o.document))
	for key, value := range o.document {
		if child, ok := value.(*Object); ok {
			record[key] = child.descriptor()
			continue
		}
		record[key] = value
	}
	return record
}

// descriptor 获取对象的引用描述符。
func (o *Object) descriptor() Record {
	return Record{EntityKey: o.entity, IdKey: o.document[IdKey]}
}

// Get 读取字段值。
// 标识与时间戳字段直接返回，局部加载的对象在读取其它字段时先补全自身。
// 引用描述符被解析为子对象的局部句柄并保持活动，列表元素含实体标记或
// 映射携带一对多集合时返回惰性的对象列表。
func (o *Object) Get(key string) any {
	if key == IdKey || key == TimestampKey {
		return o.document[key]
	}
	if child, ok := o.refs[key]; ok {
		return child
	}

	value, exist := o.document[key]
	if !exist && o.partial && o.persistent {
		if err := o.Refresh(); err != nil {
			return nil
		}
		value, exist = o.document[key]
	}
	if !exist {
		return nil
	}

	switch v := value.(type) {
	case *Object:
		return v
	case Record:
		if links, ok := v[LinksKey].([]any); ok && isObjectList(links) {
			list := newObjectList(o.db, links)
			o.document[key] = list
			return list
		}
		if entity, ok := v[EntityKey].(string); ok && !XString.IsEmpty(entity) {
			if id, has := v[IdKey]; has && id != nil {
				child := o.db.resolveReference(entity, id)
				o.refs[key] = child
				o.document[key] = child
				return child
			}
		}
		return v
	case []any:
		if isObjectList(v) {
			list := newObjectList(o.db, v)
			o.document[key] = list
			return list
		}
		return v
	case *ObjectList:
		return v
	default:
		return value
	}
}

// isObjectList 判断列表元素是否均为含实体标记的映射。
func isObjectList(values []any) bool {
	if len(values) == 0 {
		return false
	}
	for _, item := range values {
		record, ok := item.(Record)
		if !ok {
			return false
		}
		if entity, has := record[EntityKey].(string); !has || XString.IsEmpty(entity) {
			return false
		}
	}
	return true
}

// Has 判断字段是否存在，不触发补全加载。
func (o *Object) Has(key string) bool {
	_, exist := o.document[key]
	return exist
}

// Keys 获取当前已知的字段名称集合。
func (o *Object) Keys() []string {
	keys := make([]string, 0, len(o.document))
	for key := range o.document {
		keys = append(keys, key)
	}
	return keys
}

// Remove 移除字段，已落库的对象在保存时对该字段执行反设置。
func (o *Object) Remove(key string) *Object {
	delete(o.document, key)
	delete(o.delta, key)
	delete(o.refs, key)
	if o.persistent {
		o.erased[key] = true
	}
	return o
}

// Load 批量写入字段，等价于逐一 Set。
func (o *Object) Load(data Record) *Object {
	for key, value := range data {
		o.Set(key, value)
	}
	return o
}

// Clear 丢弃全部字段状态与变更集，对象退化为未落库状态。
func (o *Object) Clear() *Object {
	o.document = make(Record)
	o.delta = make(Record)
	o.erased = make(map[string]bool)
	o.refs = make(map[string]*Object)
	o.persistent = false
	o.partial = false
	return o
}

// Refresh 以引擎中的完整记录补全对象，保持活动的引用句柄不被覆盖。
func (o *Object) Refresh() error {
	id, ok := o.document[IdKey]
	if !ok || id == nil {
		return newError("refresh object of entity "+o.entity, ErrNilId)
	}
	record, err := o.db.engine.Get(o.entity, id)
	if err != nil {
		return err
	}
	if record == nil {
		return newError("object "+o.db.engine.FormatId(id)+" of entity "+o.entity+" is gone", nil)
	}
	for key, value := range record {
		if _, live := o.refs[key]; live {
			continue
		}
		if _, dirty := o.delta[key]; dirty {
			continue
		}
		o.document[key] = value
	}
	o.partial = false
	return nil
}

// Save 保存对象。
// 先深度优先保存引用的子对象，再将引用字段写回为描述符。
// 未落库的对象执行插入，已落库且存在变更的对象执行增量更新，
// 无变更时不触达引擎。保存过程持有环保护标识，引用环不会导致死循环。
func (o *Object) Save() error {
	if o.saving {
		return nil
	}
	o.saving = true
	defer func() { o.saving = false }()

	for _, child := range o.refs {
		if err := child.Save(); err != nil {
			return err
		}
	}

	if !o.persistent {
		doc := make(Record, len(o.document)+1)
		for key, value := range o.document {
			if child, ok := value.(*Object); ok {
				doc[key] = child.descriptor()
				continue
			}
			if list, ok := value.(*ObjectList); ok {
				doc[key] = list.records
				continue
			}
			doc[key] = value
		}
		if o.timestamp {
			if _, exist := doc[TimestampKey]; !exist {
				doc[TimestampKey] = time.Now().UTC()
			}
		}
		id, err := o.db.engine.Insert(o.entity, doc)
		if err != nil {
			return err
		}
		o.document[IdKey] = id
		o.persistent = true
		o.partial = false
		o.delta = make(Record)
		o.erased = make(map[string]bool)
		o.db.arenaStore(o)
		objectSaveCounter.WithLabelValues(o.db.name, o.entity).Inc()
		return nil
	}

	if !o.Dirty() {
		return nil
	}

	set := make(Record, len(o.delta)+1)
	for key, value := range o.delta {
		if child, ok := value.(*Object); ok {
			set[key] = child.descriptor()
			continue
		}
		set[key] = value
	}
	if o.timestamp {
		now := time.Now().UTC()
		set[TimestampKey] = now
		o.document[TimestampKey] = now
	}
	unset := make([]string, 0, len(o.erased))
	for key := range o.erased {
		unset = append(unset, key)
	}
	if err := o.db.engine.Update(o.entity, o.document[IdKey], set, unset); err != nil {
		return err
	}
	o.delta = make(Record)
	o.erased = make(map[string]bool)
	objectSaveCounter.WithLabelValues(o.db.name, o.entity).Inc()
	return nil
}

// Delete 删除对象的落库记录，对象退化为未落库状态。
func (o *Object) Delete() error {
	if !o.persistent {
		return newError("delete object of entity "+o.entity, ErrNilId)
	}
	if _, err := o.db.engine.Delete(o.entity, o.document[IdKey]); err != nil {
		return err
	}
	o.db.arenaRemove(o.entity, o.document[IdKey])
	o.persistent = false
	return nil
}
