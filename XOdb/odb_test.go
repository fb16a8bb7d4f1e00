// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/beego/beego/v2/client/orm"
	"github.com/eframework-org/GO.UTIL/XLog"

	_ "github.com/mattn/go-sqlite3"
)

const TestOdbAlias = "odb_test"

var (
	setupDatabaseOnce sync.Once
	testOdb           *Database
)

// SetupOdbTest 初始化测试数据库门面，底层为本地的 SQLite3 记录引擎。
func SetupOdbTest() *Database {
	setupDatabaseOnce.Do(func() {
		source := filepath.Join(os.TempDir(), "xodb_test.db")
		os.Remove(source)
		if err := orm.RegisterDataBase(TestOdbAlias, "sqlite3",
			fmt.Sprintf("file:%v?cache=shared&mode=rwc", source)); err != nil {
			XLog.Panic("注册测试数据库失败: %v", err)
		}
		engine, err := NewRecordEngine(TestOdbAlias)
		if err != nil {
			XLog.Panic("创建测试引擎失败: %v", err)
		}
		testOdb = Register(TestOdbAlias, engine)
	})
	return testOdb
}

// ResetOdbTest 清理测试实体。
func ResetOdbTest(entities ...string) {
	if testOdb == nil {
		return
	}
	for _, entity := range entities {
		testOdb.Drop(entity)
	}
	testOdb.cache.Clear()
}
