// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

import (
	"iter"

	"github.com/eframework-org/GO.UTIL/XString"
)

// ObjectList 表示只读的对象列表。
// 列表持有原生记录，元素在首次访问时才被装配为受管对象并缓存，
// 元素的实体由固定实体或记录内的实体标记决定。
// 列表不支持修改，结构性的变更应当通过父对象的 Set 完成。
type ObjectList struct {
	db       *Database // 所属数据库
	entity   string    // 固定实体（为空时由元素的实体标记决定）
	records  []any     // 原生记录集
	resolved []*Object // 已装配的元素缓存
}

// newObjectList 以记录集创建惰性的对象列表。
func newObjectList(db *Database, records []any) *ObjectList {
	return &ObjectList{db: db, records: records, resolved: make([]*Object, len(records))}
}

// newEntityList 以固定实体和记录集创建惰性的对象列表。
func newEntityList(db *Database, entity string, records []Record) *ObjectList {
	generic := make([]any, len(records))
	for i, record := range records {
		generic[i] = record
	}
	return &ObjectList{db: db, entity: entity, records: generic, resolved: make([]*Object, len(records))}
}

// Size 获取列表的元素数量。
func (l *ObjectList) Size() int {
	if l == nil {
		return 0
	}
	return len(l.records)
}

// At 获取指定位置的元素，越界时返回 nil。
// 元素在首次访问时装配，描述符形态的记录装配为局部句柄。
func (l *ObjectList) At(index int) *Object {
	if l == nil || index < 0 || index >= len(l.records) {
		return nil
	}
	if l.resolved[index] != nil {
		return l.resolved[index]
	}

	record, ok := l.records[index].(Record)
	if !ok {
		return nil
	}
	entity := l.entity
	if tagged, has := record[EntityKey].(string); has && !XString.IsEmpty(tagged) {
		entity = tagged
	}
	if XString.IsEmpty(entity) {
		return nil
	}

	var obj *Object
	if id, has := record[IdKey]; has && id != nil && len(record) <= 2 {
		obj = l.db.resolveReference(entity, id)
	} else {
		obj = loadedObject(l.db, entity, record, false)
	}
	l.resolved[index] = obj
	return obj
}

// ForEach 按序遍历列表元素，fn 返回 false 时终止遍历。
func (l *ObjectList) ForEach(fn func(index int, obj *Object) bool) {
	for i := range l.records {
		if !fn(i, l.At(i)) {
			return
		}
	}
}

// Iterator 获取列表的迭代器，可直接用于 range 遍历。
func (l *ObjectList) Iterator() iter.Seq2[int, *Object] {
	return func(yield func(int, *Object) bool) {
		for i := range l.records {
			if !yield(i, l.At(i)) {
				return
			}
		}
	}
}

// Add 不受支持，列表是只读的。
func (l *ObjectList) Add(obj *Object) error {
	return unsupportedError("list", "add")
}

// Set 不受支持，列表是只读的。
func (l *ObjectList) Set(index int, obj *Object) error {
	return unsupportedError("list", "set")
}

// RemoveAt 不受支持，列表是只读的。
func (l *ObjectList) RemoveAt(index int) error {
	return unsupportedError("list", "remove")
}
