// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

import (
	"time"

	"github.com/eframework-org/GO.UTIL/XString"
)

// DateFormat 是序列化输出中日期时间的统一格式（UTC）。
const DateFormat = "2006-01-02T15:04:05.000Z"

// FetchStrategy 表示对象序列化的抓取策略。
type FetchStrategy int

const (
	// FetchMinimal 仅输出实体标记与标识。
	FetchMinimal FetchStrategy = iota

	// FetchSimple 输出标量字段，引用与列表字段退化为最小形态。
	FetchSimple

	// FetchAll 输出全部字段，引用与列表按关系模式递归展开。
	FetchAll
)

// Schema 描述对象序列化的形态。
// Fields 非空时仅输出其中的字段，Exclude 中的字段始终被排除。
// Relations 为引用与列表字段指定子模式，缺失子模式的关系字段按最小形态输出。
type Schema struct {
	Strategy  FetchStrategy      // 抓取策略
	Fields    []string           // 白名单字段
	Exclude   []string           // 排除字段
	Relations map[string]*Schema // 关系字段的子模式
}

// MinimalSchema 是最小形态的共享模式。
var MinimalSchema = &Schema{Strategy: FetchMinimal}

// SimpleSchema 是标量形态的共享模式。
var SimpleSchema = &Schema{Strategy: FetchSimple}

// AllSchema 是完整形态的共享模式。
var AllSchema = &Schema{Strategy: FetchAll}

// included 判断字段是否应当输出。
func (s *Schema) included(field string) bool {
	for _, excluded := range s.Exclude {
		if excluded == field {
			return false
		}
	}
	if len(s.Fields) == 0 {
		return true
	}
	for _, included := range s.Fields {
		if included == field {
			return true
		}
	}
	return false
}

// relation 获取关系字段的子模式，缺失时返回最小形态。
func (s *Schema) relation(field string) *Schema {
	if s.Relations != nil {
		if sub, exist := s.Relations[field]; exist && sub != nil {
			return sub
		}
	}
	return MinimalSchema
}

// ToJson 按模式序列化对象为通用映射。
// schema 为 nil 时使用完整形态。标识统一输出为字符串，
// 日期时间统一输出为 UTC 格式的字符串。
// 非最小形态下，局部加载的对象先补全自身。
func (o *Object) ToJson(schema *Schema) (map[string]any, error) {
	if schema == nil {
		schema = AllSchema
	}

	out := map[string]any{EntityKey: o.entity}
	if id := o.Id(); !XString.IsEmpty(id) {
		out[IdKey] = id
	}
	if schema.Strategy == FetchMinimal {
		return out, nil
	}

	if o.partial && o.persistent {
		if err := o.Refresh(); err != nil {
			return nil, err
		}
	}

	for _, key := range o.Keys() {
		if key == IdKey || !schema.included(key) {
			continue
		}
		value := o.Get(key)
		switch v := value.(type) {
		case *Object:
			if schema.Strategy == FetchSimple {
				sub, err := v.ToJson(MinimalSchema)
				if err != nil {
					return nil, err
				}
				out[key] = sub
				continue
			}
			sub, err := v.ToJson(schema.relation(key))
			if err != nil {
				return nil, err
			}
			out[key] = sub
		case *ObjectList:
			if schema.Strategy == FetchSimple {
				out[key] = map[string]any{TotalKey: v.Size()}
				continue
			}
			items := make([]any, 0, v.Size())
			var walkErr error
			v.ForEach(func(index int, item *Object) bool {
				if item == nil {
					items = append(items, v.records[index])
					return true
				}
				sub, err := item.ToJson(schema.relation(key))
				if err != nil {
					walkErr = err
					return false
				}
				items = append(items, sub)
				return true
			})
			if walkErr != nil {
				return nil, walkErr
			}
			out[key] = items
		case time.Time:
			out[key] = v.UTC().Format(DateFormat)
		case []any:
			out[key] = serializeList(v)
		case Record:
			out[key] = serializeRecord(v)
		default:
			out[key] = value
		}
	}
	return out, nil
}

// serializeRecord 序列化嵌套的原生映射，日期时间统一转为格式化字符串。
func serializeRecord(record Record) map[string]any {
	out := make(map[string]any, len(record))
	for key, value := range record {
		switch v := value.(type) {
		case time.Time:
			out[key] = v.UTC().Format(DateFormat)
		case Record:
			out[key] = serializeRecord(v)
		case []any:
			out[key] = serializeList(v)
		default:
			out[key] = value
		}
	}
	return out
}

// serializeList 序列化嵌套的原生列表。
func serializeList(values []any) []any {
	out := make([]any, 0, len(values))
	for _, value := range values {
		switch v := value.(type) {
		case time.Time:
			out = append(out, v.UTC().Format(DateFormat))
		case Record:
			out = append(out, serializeRecord(v))
		case []any:
			out = append(out, serializeList(v))
		default:
			out = append(out, value)
		}
	}
	return out
}
