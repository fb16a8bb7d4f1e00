// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// FilterAppender 将单个条件转换为文档形态的条件表达式。
// 每个操作符对应一个转换策略，未登记的操作符由默认策略兜底。
type FilterAppender interface {
	// Append 转换条件，返回字段级的条件项。
	Append(condition *Condition) (bson.E, error)
}

// appenderFunc 是函数形态的转换策略。
type appenderFunc func(condition *Condition) (bson.E, error)

func (f appenderFunc) Append(condition *Condition) (bson.E, error) { return f(condition) }

// comparisonAppender 是比较操作符的默认策略。
func comparisonAppender(keyword string) FilterAppender {
	return appenderFunc(func(condition *Condition) (bson.E, error) {
		return bson.E{Key: condition.Field, Value: bson.D{{Key: keyword, Value: condition.Value()}}}, nil
	})
}

// likePattern 将通配形态的匹配文本转换为锚定的正则。
func likePattern(value any) string {
	text, _ := value.(string)
	escaped := strings.NewReplacer(
		".", "\\.", "^", "\\^", "$", "\\$", "*", "\\*", "+", "\\+",
		"?", "\\?", "(", "\\(", ")", "\\)", "[", "\\[", "]", "\\]",
		"{", "\\{", "}", "\\}", "|", "\\|", "\\", "\\\\",
	).Replace(text)
	return "^" + strings.ReplaceAll(escaped, "%", ".*") + "$"
}

// documentAppenders 登记各操作符的转换策略。
var documentAppenders = map[Operator]FilterAppender{
	OpEq:  comparisonAppender("$eq"),
	OpNeq: comparisonAppender("$ne"),
	OpGt:  comparisonAppender("$gt"),
	OpGte: comparisonAppender("$gte"),
	OpLt:  comparisonAppender("$lt"),
	OpLte: comparisonAppender("$lte"),
	OpLike: appenderFunc(func(condition *Condition) (bson.E, error) {
		if binding, ok := condition.Value().(Binding); ok {
			return bson.E{Key: condition.Field, Value: bson.D{{Key: "$regex", Value: binding}}}, nil
		}
		return bson.E{Key: condition.Field, Value: bson.D{{Key: "$regex", Value: likePattern(condition.Value())}}}, nil
	}),
	OpNlike: appenderFunc(func(condition *Condition) (bson.E, error) {
		return bson.E{Key: condition.Field, Value: bson.D{{Key: "$not", Value: bson.D{{Key: "$regex", Value: likePattern(condition.Value())}}}}}, nil
	}),
	OpBtw: appenderFunc(func(condition *Condition) (bson.E, error) {
		return bson.E{Key: condition.Field, Value: bson.D{
			{Key: "$gte", Value: condition.Values[0]},
			{Key: "$lte", Value: condition.Values[1]},
		}}, nil
	}),
	OpNbtw: appenderFunc(func(condition *Condition) (bson.E, error) {
		return bson.E{Key: condition.Field, Value: bson.D{{Key: "$not", Value: bson.D{
			{Key: "$gte", Value: condition.Values[0]},
			{Key: "$lte", Value: condition.Values[1]},
		}}}}, nil
	}),
	OpIn: appenderFunc(func(condition *Condition) (bson.E, error) {
		return bson.E{Key: condition.Field, Value: bson.D{{Key: "$in", Value: flattenValues(condition.Values)}}}, nil
	}),
	OpNin: appenderFunc(func(condition *Condition) (bson.E, error) {
		return bson.E{Key: condition.Field, Value: bson.D{{Key: "$nin", Value: flattenValues(condition.Values)}}}, nil
	}),
	OpNil: appenderFunc(func(condition *Condition) (bson.E, error) {
		return bson.E{Key: condition.Field, Value: bson.D{{Key: "$eq", Value: nil}}}, nil
	}),
	OpNnil: appenderFunc(func(condition *Condition) (bson.E, error) {
		return bson.E{Key: condition.Field, Value: bson.D{{Key: "$ne", Value: nil}}}, nil
	}),
	OpRegex: appenderFunc(func(condition *Condition) (bson.E, error) {
		return bson.E{Key: condition.Field, Value: bson.D{{Key: "$regex", Value: condition.Value()}}}, nil
	}),
	OpFtq: appenderFunc(func(condition *Condition) (bson.E, error) {
		return bson.E{Key: "$text", Value: bson.D{{Key: "$search", Value: condition.Value()}}}, nil
	}),
}

// defaultAppender 是未登记操作符的兜底策略，按相等匹配处理。
var defaultAppender = comparisonAppender("$eq")

// appenderOf 获取操作符的转换策略。
func appenderOf(operator Operator) FilterAppender {
	if appender, exist := documentAppenders[operator]; exist {
		return appender
	}
	return defaultAppender
}

// documentGroup 是条件分组的构建状态。
type documentGroup struct {
	or    bool
	items bson.A
}

// documentWalker 在查询遍历中拼装文档形态的查询。
type documentWalker struct {
	groups     []*documentGroup
	filter     bson.D
	sort       bson.D
	projection bson.D
	skip       int64
	limit      int64
	bindings   map[string]any
}

func (w *documentWalker) OnQuery(timing Timing, query *Query) error { return nil }

func (w *documentWalker) OnSelect(timing Timing, fields []string) error { return nil }

func (w *documentWalker) OnSelectField(field string, index int) error {
	w.projection = append(w.projection, bson.E{Key: field, Value: 1})
	return nil
}

func (w *documentWalker) OnFilter(timing Timing, filter *Filter, depth int) error {
	if timing == TimingStart {
		w.groups = append(w.groups, &documentGroup{or: filter.Or})
		return nil
	}

	group := w.groups[len(w.groups)-1]
	w.groups = w.groups[:len(w.groups)-1]
	keyword := "$and"
	if group.or {
		keyword = "$or"
	}
	composed := bson.D{{Key: keyword, Value: group.items}}
	if depth > 0 {
		w.groups[len(w.groups)-1].items = append(w.groups[len(w.groups)-1].items, composed)
	} else {
		w.filter = composed
	}
	return nil
}

func (w *documentWalker) OnCondition(condition *Condition, filter *Filter, index int) error {
	if err := condition.Validate(); err != nil {
		return err
	}
	w.register(condition.Values)
	entry, err := appenderOf(condition.Operator).Append(condition)
	if err != nil {
		return err
	}
	group := w.groups[len(w.groups)-1]
	group.items = append(group.items, bson.D{entry})
	return nil
}

func (w *documentWalker) OnOrderBy(timing Timing, orders []OrderByField) error { return nil }

func (w *documentWalker) OnOrderByField(order OrderByField, index int) error {
	direction := 1
	if order.Direction == Desc {
		direction = -1
	}
	w.sort = append(w.sort, bson.E{Key: order.Field, Value: direction})
	return nil
}

func (w *documentWalker) OnPage(start int, count int) error {
	w.skip = int64(start)
	w.limit = int64(count)
	return nil
}

// register 登记条件值中的命名占位符。
func (w *documentWalker) register(values []any) {
	for _, value := range values {
		if name, ok := value.(Binding); ok {
			if w.bindings == nil {
				w.bindings = make(map[string]any)
			}
			w.bindings[string(name)] = nil
		}
	}
}
