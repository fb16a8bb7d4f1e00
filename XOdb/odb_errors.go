// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSupported 表示引擎或列表不支持该操作。
	ErrNotSupported = errors.New("operation is not supported")

	// ErrNilQuery 表示查询对象为空。
	ErrNilQuery = errors.New("query is nil")

	// ErrNilEntity 表示实体名称为空。
	ErrNilEntity = errors.New("entity name is nil")

	// ErrNilId 表示对象标识为空。
	ErrNilId = errors.New("object id is nil")

	// ErrMalformedCondition 表示查询条件不完整或非法（如区间操作符缺少数值）。
	ErrMalformedCondition = errors.New("condition is malformed")

	// ErrUnboundParameter 表示编译后的查询引用了未提供的绑定参数。
	ErrUnboundParameter = errors.New("bound parameter is missing")
)

// newError 构造领域错误，message 为错误描述，cause 为底层错误（可为空）。
// 返回的错误携带原始错误，可通过 errors.Is/As 进行判定。
func newError(message string, cause error) error {
	if cause == nil {
		return errors.New(message)
	}
	return fmt.Errorf("%v: %w", message, cause)
}

// unsupportedError 构造能力错误，operation 为不受支持的操作名称。
// 返回的错误可通过 errors.Is(err, ErrNotSupported) 进行判定。
func unsupportedError(engine string, operation string) error {
	return fmt.Errorf("engine %v: %v: %w", engine, operation, ErrNotSupported)
}
