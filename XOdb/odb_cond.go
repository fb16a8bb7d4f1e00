// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/eframework-org/GO.UTIL/XLog"
)

// operatorMap 映射表达式操作符至查询操作符。
var operatorMap = map[string]Operator{
	">":     OpGt,
	">=":    OpGte,
	"<":     OpLt,
	"<=":    OpLte,
	"==":    OpEq,
	"!=":    OpNeq,
	"like":  OpLike,
	"!like": OpNlike,
	"btw":   OpBtw,
	"!btw":  OpNbtw,
	"in":    OpIn,
	"!in":   OpNin,
	"regex": OpRegex,
	"ftq":   OpFtq,
	"nil":   OpNil,
	"!nil":  OpNnil,
}

// exprParserCache 缓存已解析的表达式括号结构。
var exprParserCache sync.Map

// Cond 从表达式和参数创建条件集合。
//
// 用法：
//  1. Cond() - 创建空条件
//  2. Cond(filter *Filter) - 透传现有条件
//  3. Cond("age > {0} && name like {1}", 18, "Ada%") - 从表达式和参数创建
//
// 表达式的标记以空白分隔，形如 "字段 操作符 值"。值为 {n} 形式的位置参数，
// 或 :name 形式的命名占位符（执行时由 Query.Bindings 提供实际值）。
// nil/!nil 操作符不携带值，btw/!btw 携带两个值。
// 同一层级的条目使用同一种连接符（&& 或 ||），混合连接需使用括号分组。
// start == {n} 和 count == {n} 为分页关键字，填充至 Filter 的分页信息。
func Cond(filterOrExprAndArgs ...any) *Filter {
	if len(filterOrExprAndArgs) == 0 {
		return NewFilter()
	}

	if filter, ok := filterOrExprAndArgs[0].(*Filter); ok {
		return filter
	}

	if expr, ok := filterOrExprAndArgs[0].(string); ok {
		if expr == "" {
			return NewFilter()
		}

		args := filterOrExprAndArgs[1:]
		count := strings.Count(expr, "{")
		if count != len(args) {
			XLog.Panic("XOdb.Cond('%v'): args count doesn't comply with format count.", expr)
		}

		ctx := &condContext{
			expr:   expr,
			params: args,
			root:   NewFilter(),
		}
		parseRegion(ctx, getExprIndex(expr), 0, len(expr)-1, ctx.root)
		return ctx.root
	}

	XLog.Panic("XOdb.Cond: invalid arguments type: %T", filterOrExprAndArgs[0])
	return nil
}

// condContext 表达式解析上下文。
type condContext struct {
	expr     string   // 原始表达式
	params   []any    // 参数列表
	root     *Filter  // 根条件（承载分页信息）
	key      string   // 当前字段
	operator Operator // 当前操作符
	needed   int      // 当前操作符还需要的值数量
	values   []any    // 当前已收集的值
	comb     string   // 当前连接符（&& 或 ||）
}

// getExprIndex 获取或解析表达式的括号索引映射。
func getExprIndex(expr string) map[int]int {
	if cached, ok := exprParserCache.Load(expr); ok {
		return cached.(map[int]int)
	}

	lArr, rArr := make([]int, 0, len(expr)/2), make([]int, 0, len(expr)/2)
	for i, ch := range expr {
		switch ch {
		case '(':
			lArr = append(lArr, i)
		case ')':
			rArr = append(rArr, i)
		}
	}
	if len(lArr) != len(rArr) {
		XLog.Panic("XOdb.Cond('%v'): left bracket count %v doesn't equals right bracket count %v.", expr, len(lArr), len(rArr))
	}

	lrMap := make(map[int]int, len(rArr))
	for _, rIndex := range rArr {
		for j := len(lArr) - 1; j >= 0; j-- {
			lIndex := lArr[j]
			if rIndex > lIndex {
				lrMap[lIndex] = rIndex
				lArr = append(lArr[:j], lArr[j+1:]...)
				break
			}
		}
	}
	exprParserCache.Store(expr, lrMap)
	return lrMap
}

// parseRegion 解析 expr[left..right] 区间，条目写入 filter。
// 括号分组递归解析为嵌套的 Filter。
func parseRegion(ctx *condContext, lrMap map[int]int, left, right int, filter *Filter) {
	combKnown := false
	i := left
	for i <= right && i < len(ctx.expr) {
		ch := ctx.expr[i]
		switch {
		case ch == ' ' || ch == '\t':
			i++
		case ch == '(':
			rIndex, ok := lrMap[i]
			if !ok || rIndex > right {
				XLog.Panic("XOdb.Cond('%v'): unbalanced bracket at %v.", ctx.expr, i)
			}
			if ctx.key != "" || ctx.operator != "" {
				XLog.Panic("XOdb.Cond('%v'): unexpected bracket inside a condition.", ctx.expr)
			}
			pending := ctx.comb
			ctx.comb = ""
			group := NewFilter()
			parseRegion(ctx, lrMap, i+1, rIndex-1, group)
			ctx.comb = pending
			attachEntry(ctx, filter, group, &combKnown)
			i = rIndex + 1
		case ch == ')':
			XLog.Panic("XOdb.Cond('%v'): unexpected right bracket at %v.", ctx.expr, i)
		default:
			j := i
			for j <= right && j < len(ctx.expr) && ctx.expr[j] != ' ' && ctx.expr[j] != '\t' && ctx.expr[j] != '(' && ctx.expr[j] != ')' {
				j++
			}
			parseCondToken(ctx, filter, ctx.expr[i:j], &combKnown)
			i = j
		}
	}
	if ctx.key != "" || ctx.operator != "" || ctx.comb != "" {
		XLog.Panic("XOdb.Cond('%v'): incomplete condition near '%v'.", ctx.expr, ctx.key)
	}
}

// parseCondToken 解析单个标记。
func parseCondToken(ctx *condContext, filter *Filter, token string, combKnown *bool) {
	switch token {
	case "&&", "||":
		if ctx.key != "" || ctx.operator != "" {
			XLog.Panic("XOdb.Cond('%v'): conjunction inside a condition.", ctx.expr)
		}
		ctx.comb = token
		return
	}

	if op, exist := operatorMap[token]; exist && ctx.key != "" && ctx.operator == "" {
		ctx.operator = op
		switch op {
		case OpBtw, OpNbtw:
			ctx.needed = 2
		case OpNil, OpNnil:
			ctx.needed = 0
			completeCondition(ctx, filter, combKnown)
		default:
			ctx.needed = 1
		}
		return
	}

	if strings.HasPrefix(token, "{") && strings.HasSuffix(token, "}") {
		if ctx.key == "" || ctx.operator == "" {
			XLog.Panic("XOdb.Cond('%v'): unexpected value token: %v.", ctx.expr, token)
		}
		idx, err := strconv.Atoi(token[1 : len(token)-1])
		if err != nil || idx < 0 || idx >= len(ctx.params) {
			XLog.Panic("XOdb.Cond('%v'): invalid parameter index: %v.", ctx.expr, token)
		}
		ctx.values = append(ctx.values, ctx.params[idx])
		if len(ctx.values) >= ctx.needed {
			completeCondition(ctx, filter, combKnown)
		}
		return
	}

	if strings.HasPrefix(token, ":") && len(token) > 1 {
		if ctx.key == "" || ctx.operator == "" {
			XLog.Panic("XOdb.Cond('%v'): unexpected binding token: %v.", ctx.expr, token)
		}
		ctx.values = append(ctx.values, Binding(token[1:]))
		if len(ctx.values) >= ctx.needed {
			completeCondition(ctx, filter, combKnown)
		}
		return
	}

	if ctx.key != "" {
		XLog.Panic("XOdb.Cond('%v'): unexpected token: %v.", ctx.expr, token)
	}
	ctx.key = token
}

// completeCondition 结束当前条件并附加至集合。
func completeCondition(ctx *condContext, filter *Filter, combKnown *bool) {
	if (ctx.key == "start" || ctx.key == "count") && ctx.operator == OpEq && len(ctx.values) == 1 {
		// 分页关键字写入根条件
		value, ok := ctx.values[0].(int)
		if !ok {
			XLog.Panic("XOdb.Cond('%v'): %v requires an int value.", ctx.expr, ctx.key)
		}
		if ctx.key == "start" {
			ctx.root.Start = value
		} else {
			ctx.root.Count = value
		}
	} else {
		attachEntry(ctx, filter, &Condition{Field: ctx.key, Operator: ctx.operator, Values: ctx.values}, combKnown)
	}
	ctx.key = ""
	ctx.operator = ""
	ctx.needed = 0
	ctx.values = nil
}

// attachEntry 将条目附加至集合并校验连接符的一致性。
func attachEntry(ctx *condContext, filter *Filter, entry any, combKnown *bool) {
	if filter.Size() > 0 {
		or := ctx.comb == "||"
		if !*combKnown {
			filter.Or = or
			*combKnown = true
		} else if filter.Or != or {
			XLog.Panic("XOdb.Cond('%v'): mixed conjunctions in one group, use brackets.", ctx.expr)
		}
	}
	ctx.comb = ""
	switch v := entry.(type) {
	case *Condition:
		filter.entries = append(filter.entries, v)
	case *Filter:
		filter.Group(v)
	default:
		XLog.Panic(fmt.Sprintf("XOdb.Cond: invalid entry type: %T", entry))
	}
}
