// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

/*
XOdb 提供了引擎无关的对象数据访问层，统一了关系库与文档库的查询、映射和缓存机制。

功能特性

  - 多源配置：通过解析首选项中的配置自动初始化数据库门面
  - 统一查询：引擎无关的查询模型，支持表达式和 JSON 两种构建方式
  - 受管对象：字段级脏跟踪、局部加载与引用级联保存
  - 编译缓存：命名查询的编译产物在门面内缓存，绑定参数逐次替换

使用手册

1. 多源配置

配置说明：
  - 配置键名：Odb/<数据库类型>/<数据库别名>
  - 支持 MySQL、SQLite3 和 MongoDB
  - 配置参数：
  - Addr：数据源地址
  - Name：库名（MongoDB）
  - Pool：连接池大小（关系库）
  - Conn：最大连接数（关系库）

配置示例：

	{
	    "Odb/MySQL/Main": {
	        "Addr": "root:123456@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&loc=Local",
	        "Pool": 1,
	        "Conn": 1
	    },
	    "Odb/SQLite3/Local": {
	        "Addr": "file:data.db?cache=shared&mode=rwc",
	        "Pool": 1,
	        "Conn": 1
	    },
	    "Odb/MongoDB/Docs": {
	        "Addr": "mongodb://localhost:27017",
	        "Name": "dbname"
	    }
	}

2. 统一查询

2.1 表达式构建

	db := XOdb.New("Main")

	// 条件表达式以空白分隔，值为 {n} 位置参数或 :name 命名占位符
	query := XOdb.NewQuery("Driver").
	    Filter(XOdb.Cond("age > {0} && name like {1}", 18, "Ada%")).
	    OrderBy("name", XOdb.Asc).
	    Page(0, 10)

	list, err := db.Find(query, nil)

2.2 命名查询与编译缓存

	// 命名查询的编译产物被缓存，后续执行仅替换绑定参数
	query := XOdb.NewQuery("Driver").
	    Filter(XOdb.Cond("age > :minAge")).
	    Named("drivers.byAge").
	    Bind("minAge", 18)

	list, err := db.Find(query, nil)

2.3 JSON 构建

	query := XOdb.ParseQuery(map[string]any{
	    "$entity": "Driver",
	    "where": map[string]any{
	        "age":  map[string]any{"op": "gt", "value": 18},
	        "name": map[string]any{"op": "like", "value": "Ada%"},
	    },
	    "orderBy": []any{"name"},
	    "count":   10,
	}, nil)

3. 受管对象

3.1 创建与保存

	driver, _ := db.Create("Driver", XOdb.Record{"name": "Ada", "age": 30})
	car, _ := db.Create("Car", XOdb.Record{"model": "Roadster"})

	// 引用字段在保存时先深度优先保存子对象，再以描述符落库
	driver.Set("car", car)
	err := driver.Save()

3.2 读取与局部加载

	driver, _ := db.Get("Driver", id)

	// 引用字段解析为局部句柄，读取其字段时按需补全
	car := driver.Get("car").(*XOdb.Object)
	model := car.Get("model")

3.3 脏跟踪

	driver.Set("age", 31)
	// 仅 age 字段被写回
	err := driver.Save()

4. 序列化

	// 按抓取策略序列化，引用与列表可指定子模式
	out, _ := driver.ToJson(&XOdb.Schema{
	    Strategy: XOdb.FetchAll,
	    Relations: map[string]*XOdb.Schema{
	        "car": {Strategy: XOdb.FetchSimple},
	    },
	})

5. 批量与原子操作

	// 批量写入，引擎支持事务时批量是原子的
	totals, _ := db.Bulk(map[string][]XOdb.Record{
	    "Driver": {{"name": "Ada"}, {"name": "Lin"}},
	})

	// 原子自增
	value, _ := db.Increment("Driver", id, "score", 10)

更多信息请参考模块文档。
*/
package XOdb
