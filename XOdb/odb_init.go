// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

import (
	"strings"

	"github.com/beego/beego/v2/client/orm"
	"github.com/eframework-org/GO.UTIL/XCollect"
	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XPrefs"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

const (
	prefsOdbAddr = "Addr"
	prefsOdbName = "Name"
	prefsOdbPool = "Pool"
	prefsOdbConn = "Conn"
)

// databases 登记已初始化的数据库门面。
var databases = XCollect.NewMap()

func init() {
	initOdb(XPrefs.Asset())
}

// initOdb 按首选项初始化数据库门面。
// 首选项键形如 Odb/<Type>/<Alias>，Type 为 MySQL、SQLite3 或 MongoDB，
// 值为包含 Addr、Name、Pool、Conn 的配置块。
func initOdb(prefs XPrefs.IBase) {
	if prefs == nil {
		XLog.Panic("XOdb.Init: prefs is nil.")
		return
	}

	for _, key := range prefs.Keys() {
		if !strings.HasPrefix(key, "Odb/") {
			continue
		}
		parts := strings.Split(key, "/")
		if len(parts) < 3 {
			XLog.Panic("XOdb.Init: invalid prefs key %v.", key)
			return
		}

		odbType := strings.ToLower(parts[1])
		odbAlias := parts[2]

		base, _ := prefs.Get(key).(XPrefs.IBase)
		if base == nil {
			XLog.Error("XOdb.Init: invalid config for %v", key)
			continue
		}
		odbAddr := base.GetString(prefsOdbAddr)

		switch odbType {
		case "mysql", "sqlite3":
			odbPool := base.GetInt(prefsOdbPool)
			odbConn := base.GetInt(prefsOdbConn)
			if err := orm.RegisterDataBase(odbAlias, odbType, odbAddr,
				orm.MaxIdleConnections(odbPool),
				orm.MaxOpenConnections(odbConn)); err != nil {
				XLog.Panic("XOdb.Init: register database %v failed, err: %v", odbAlias, err)
				return
			}
			engine, err := NewRecordEngine(odbAlias)
			if err != nil {
				XLog.Panic("XOdb.Init: create record engine %v failed, err: %v", odbAlias, err)
				return
			}
			Register(odbAlias, engine)
		case "mongodb":
			odbName := base.GetString(prefsOdbName)
			engine, err := NewDocumentEngine(odbAddr, odbName)
			if err != nil {
				XLog.Panic("XOdb.Init: create document engine %v failed, err: %v", odbAlias, err)
				return
			}
			Register(odbAlias, engine)
		default:
			XLog.Error("XOdb.Init: unknown engine type %v for %v", odbType, key)
		}
	}
}

// Register 以指定引擎登记数据库门面，同名登记覆盖旧有门面。
func Register(alias string, engine Engine) *Database {
	db := NewDatabase(alias, engine)
	databases.Store(alias, db)
	return db
}

// New 获取已登记的数据库门面，未登记时返回 nil。
func New(alias string) *Database {
	if value, ok := databases.Load(alias); ok {
		return value.(*Database)
	}
	XLog.Error("XOdb.New: database %v is not registered.", alias)
	return nil
}
