// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/beego/beego/v2/client/orm"
	"github.com/eframework-org/GO.UTIL/XCollect"
	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XString"
	"github.com/google/uuid"
	"github.com/petermattis/goid"
)

// metaTable 是实体字段定义的登记表。
const metaTable = "xodb_meta"

// sqlDateFormat 是记录引擎落库日期的文本格式，按字典序比较即按时间序比较。
const sqlDateFormat = "2006-01-02 15:04:05.000"

// rawExecutor 抽象了普通执行与事务执行的公共能力。
type rawExecutor interface {
	Raw(query string, args ...any) orm.RawSeter
}

// RecordEngine 是基于关系库的存储引擎。
// 实体映射为数据表，字段定义登记于内存注册表并持久化至登记表，
// 未登记的字段在写入时按值推断类型并自动扩展表结构。
// 事务以执行流标识为键隔离，同一 goroutine 内的操作共享事务。
type RecordEngine struct {
	alias   string                      // 数据库别名
	mu      sync.RWMutex                // 注册表读写锁
	schemas map[string]map[string]Field // 实体字段注册表
	txs     *XCollect.Map               // 执行流标识到活动事务的映射
}

// NewRecordEngine 以 beego orm 登记的数据库别名创建记录引擎，
// 创建时初始化登记表并恢复实体字段注册表。
func NewRecordEngine(alias string) (*RecordEngine, error) {
	engine := &RecordEngine{
		alias:   alias,
		schemas: make(map[string]map[string]Field),
		txs:     XCollect.NewMap(),
	}
	ormer := orm.NewOrmUsingDB(alias)
	if ormer == nil {
		return nil, newError("create orm instance of "+alias, nil)
	}
	if _, err := ormer.Raw("CREATE TABLE IF NOT EXISTS `" + metaTable + "` (" +
		"`entity` VARCHAR(128) NOT NULL, " +
		"`field` VARCHAR(128) NOT NULL, " +
		"`type` VARCHAR(16) NOT NULL, " +
		"`required` INTEGER NOT NULL DEFAULT 0, " +
		"`uniqued` INTEGER NOT NULL DEFAULT 0, " +
		"PRIMARY KEY (`entity`, `field`))").Exec(); err != nil {
		return nil, newError("initialize meta table of "+alias, err)
	}

	var rows []orm.Params
	if _, err := ormer.Raw("SELECT `entity`, `field`, `type`, `required`, `uniqued` FROM `" + metaTable + "`").Values(&rows); err != nil {
		return nil, newError("restore meta table of "+alias, err)
	}
	for _, row := range rows {
		entity := XString.Format("%v", row["entity"])
		field := Field{
			Name:     XString.Format("%v", row["field"]),
			Type:     Type(XString.Format("%v", row["type"])),
			Required: XString.Format("%v", row["required"]) == "1",
			Unique:   XString.Format("%v", row["uniqued"]) == "1",
		}
		if engine.schemas[entity] == nil {
			engine.schemas[entity] = make(map[string]Field)
		}
		engine.schemas[entity][field.Name] = field
	}
	return engine, nil
}

// Name 获取引擎名称。
func (e *RecordEngine) Name() string { return "record/" + e.alias }

// Supports 判断引擎能力，记录引擎支持事务与原子自增，不支持全文检索。
func (e *RecordEngine) Supports(capability Capability) bool {
	switch capability {
	case CapabilityTrx, CapabilityIncrement:
		return true
	}
	return false
}

// executor 获取当前执行流的执行器，存在活动事务时返回事务执行器。
func (e *RecordEngine) executor() rawExecutor {
	if tx, ok := e.txs.Load(goid.Get()); ok {
		return tx.(orm.TxOrmer)
	}
	return orm.NewOrmUsingDB(e.alias)
}

// columnType 将字段类型映射为列类型。
func columnType(field Field) string {
	switch field.Type {
	case TypeBoolean, TypeInteger:
		return "INTEGER"
	case TypeLong:
		return "BIGINT"
	case TypeFloat:
		return "FLOAT"
	case TypeDouble:
		return "DOUBLE"
	case TypeDate:
		return "VARCHAR(32)"
	case TypeBinary:
		return "BLOB"
	case TypeObject:
		return "TEXT"
	default:
		if field.Unique {
			return "VARCHAR(255)"
		}
		return "TEXT"
	}
}

// inferType 按值推断字段类型。
func inferType(value any) Type {
	switch value.(type) {
	case bool:
		return TypeBoolean
	case int, int32, int64:
		return TypeLong
	case float32:
		return TypeFloat
	case float64:
		return TypeDouble
	case time.Time:
		return TypeDate
	case []byte:
		return TypeBinary
	case Record, []any:
		return TypeObject
	default:
		return TypeString
	}
}

// CreateEntity 创建实体的数据表并登记字段定义。
func (e *RecordEngine) CreateEntity(entity string, fields ...Field) error {
	if XString.IsEmpty(entity) {
		return ErrNilEntity
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createEntityLocked(entity, fields...)
}

// 结构变更不参与事务，回滚不应当撤销表结构与字段登记。
func (e *RecordEngine) createEntityLocked(entity string, fields ...Field) error {
	ormer := orm.NewOrmUsingDB(e.alias)
	if e.schemas[entity] == nil {
		var sb strings.Builder
		sb.WriteString("CREATE TABLE IF NOT EXISTS `" + entity + "` (")
		sb.WriteString("`" + IdKey + "` VARCHAR(64) PRIMARY KEY, ")
		sb.WriteString("`" + TimestampKey + "` VARCHAR(32)")
		for _, field := range fields {
			if field.Name == IdKey || field.Name == TimestampKey {
				continue
			}
			sb.WriteString(", `" + field.Name + "` " + columnType(field))
			if field.Required {
				sb.WriteString(" NOT NULL")
			}
			if field.Unique {
				sb.WriteString(" UNIQUE")
			}
		}
		sb.WriteString(")")
		if _, err := ormer.Raw(sb.String()).Exec(); err != nil {
			return newError("create entity "+entity, err)
		}
		e.schemas[entity] = map[string]Field{
			IdKey:        {Name: IdKey, Type: TypeString, Required: true, Unique: true},
			TimestampKey: {Name: TimestampKey, Type: TypeDate},
		}
	} else {
		for _, field := range fields {
			if _, exist := e.schemas[entity][field.Name]; exist {
				continue
			}
			if _, err := ormer.Raw("ALTER TABLE `" + entity + "` ADD COLUMN `" + field.Name + "` " + columnType(field)).Exec(); err != nil {
				return newError("extend entity "+entity+" with field "+field.Name, err)
			}
		}
	}

	for _, field := range fields {
		if _, exist := e.schemas[entity][field.Name]; exist {
			continue
		}
		required, uniqued := 0, 0
		if field.Required {
			required = 1
		}
		if field.Unique {
			uniqued = 1
		}
		if _, err := ormer.Raw("INSERT INTO `"+metaTable+"` (`entity`, `field`, `type`, `required`, `uniqued`) VALUES (?, ?, ?, ?, ?)",
			entity, field.Name, string(field.Type), required, uniqued).Exec(); err != nil {
			return newError("register field "+field.Name+" of entity "+entity, err)
		}
		e.schemas[entity][field.Name] = field
	}
	return nil
}

// ensureFields 确保写入数据的字段均已登记，未知实体将被创建，
// 未知字段按值推断类型并扩展表结构。
func (e *RecordEngine) ensureFields(entity string, data Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	missing := make([]Field, 0)
	known := e.schemas[entity]
	for key, value := range data {
		if _, exist := known[key]; exist {
			continue
		}
		if known == nil && (key == IdKey || key == TimestampKey) {
			continue
		}
		missing = append(missing, Field{Name: key, Type: inferType(value)})
	}
	if known != nil && len(missing) == 0 {
		return nil
	}
	return e.createEntityLocked(entity, missing...)
}

// IsEntity 判断实体是否存在。
func (e *RecordEngine) IsEntity(entity string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, exist := e.schemas[entity]
	return exist, nil
}

// Drop 删除实体的数据表与字段登记。
func (e *RecordEngine) Drop(entity string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ormer := orm.NewOrmUsingDB(e.alias)
	if _, err := ormer.Raw("DROP TABLE IF EXISTS `" + entity + "`").Exec(); err != nil {
		return newError("drop entity "+entity, err)
	}
	if _, err := ormer.Raw("DELETE FROM `"+metaTable+"` WHERE `entity` = ?", entity).Exec(); err != nil {
		return newError("unregister entity "+entity, err)
	}
	delete(e.schemas, entity)
	return nil
}

// fieldOf 获取字段定义。
func (e *RecordEngine) fieldOf(entity string, name string) (Field, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	field, exist := e.schemas[entity][name]
	return field, exist
}

// encodeValue 将字段值编码为列值。
func encodeValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case bool:
		if v {
			return 1
		}
		return 0
	case time.Time:
		return v.UTC().Format(sqlDateFormat)
	case Record, []any, map[string]string:
		encoded, err := json.Marshal(v)
		if err != nil {
			XLog.Error("XOdb.RecordEngine: encode value failed: %v", err)
			return nil
		}
		return string(encoded)
	default:
		return value
	}
}

// decodeValue 按字段类型将列值解码为字段值。
// beego orm 的 Raw 查询以文本返回列值，解码依赖登记的字段类型。
func (e *RecordEngine) decodeValue(entity string, name string, value any) any {
	if value == nil {
		return nil
	}
	text := XString.Format("%v", value)
	field, exist := e.fieldOf(entity, name)
	if !exist {
		return value
	}
	switch field.Type {
	case TypeBoolean:
		return text == "1" || text == "true"
	case TypeInteger:
		if parsed, err := strconv.Atoi(text); err == nil {
			return parsed
		}
		return value
	case TypeLong:
		if parsed, err := strconv.ParseInt(text, 10, 64); err == nil {
			return parsed
		}
		return value
	case TypeFloat, TypeDouble:
		if parsed, err := strconv.ParseFloat(text, 64); err == nil {
			return parsed
		}
		return value
	case TypeDate:
		if parsed, err := time.Parse(sqlDateFormat, text); err == nil {
			return parsed.UTC()
		}
		return value
	case TypeObject:
		var decoded any
		if err := json.Unmarshal([]byte(text), &decoded); err == nil {
			return decoded
		}
		return value
	default:
		return value
	}
}

// decodeRow 将一行列值解码为记录。
func (e *RecordEngine) decodeRow(entity string, row orm.Params) Record {
	record := make(Record, len(row))
	for name, value := range row {
		if value == nil {
			continue
		}
		record[name] = e.decodeValue(entity, name, value)
	}
	return record
}

// Get 按标识获取单条记录。
func (e *RecordEngine) Get(entity string, id any) (Record, error) {
	var rows []orm.Params
	if _, err := e.executor().Raw("SELECT * FROM `"+entity+"` WHERE `"+IdKey+"` = ?", e.FormatId(id)).Values(&rows); err != nil {
		return nil, newError("get record of entity "+entity, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return e.decodeRow(entity, rows[0]), nil
}

// Insert 写入新记录，标识缺失时生成 uuid。
func (e *RecordEngine) Insert(entity string, data Record) (any, error) {
	if err := e.ensureFields(entity, data); err != nil {
		return nil, err
	}
	id, exist := data[IdKey]
	if !exist || id == nil {
		id = uuid.NewString()
	}

	columns := make([]string, 0, len(data)+1)
	args := make([]any, 0, len(data)+1)
	columns = append(columns, "`"+IdKey+"`")
	args = append(args, e.FormatId(id))
	for key, value := range data {
		if key == IdKey {
			continue
		}
		columns = append(columns, "`"+key+"`")
		args = append(args, encodeValue(value))
	}
	sql := "INSERT INTO `" + entity + "` (" + strings.Join(columns, ", ") + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	if _, err := e.executor().Raw(sql, args...).Exec(); err != nil {
		return nil, newError("insert record of entity "+entity, err)
	}
	return e.FormatId(id), nil
}

// Update 按标识更新记录，unset 中的字段置空。
func (e *RecordEngine) Update(entity string, id any, set Record, unset []string) error {
	if id == nil {
		return ErrNilId
	}
	if len(set) > 0 {
		if err := e.ensureFields(entity, set); err != nil {
			return err
		}
	}

	assigns := make([]string, 0, len(set)+len(unset))
	args := make([]any, 0, len(set)+1)
	for key, value := range set {
		if key == IdKey {
			continue
		}
		assigns = append(assigns, "`"+key+"` = ?")
		args = append(args, encodeValue(value))
	}
	for _, key := range unset {
		if key == IdKey {
			continue
		}
		assigns = append(assigns, "`"+key+"` = NULL")
	}
	if len(assigns) == 0 {
		return nil
	}
	args = append(args, e.FormatId(id))
	sql := "UPDATE `" + entity + "` SET " + strings.Join(assigns, ", ") + " WHERE `" + IdKey + "` = ?"
	if _, err := e.executor().Raw(sql, args...).Exec(); err != nil {
		return newError("update record of entity "+entity, err)
	}
	return nil
}

// Delete 按标识删除记录。
func (e *RecordEngine) Delete(entity string, id any) (int, error) {
	if id == nil {
		return 0, ErrNilId
	}
	result, err := e.executor().Raw("DELETE FROM `"+entity+"` WHERE `"+IdKey+"` = ?", e.FormatId(id)).Exec()
	if err != nil {
		return 0, newError("delete record of entity "+entity, err)
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

// Execute 执行编译产物。
func (e *RecordEngine) Execute(entity string, construct Construct, compiled CompiledQuery, bindings map[string]any) (*Result, error) {
	statement, ok := compiled.(*recordStatement)
	if !ok {
		return nil, newError("foreign compiled query for record engine", nil)
	}
	bound, err := statement.Bind(bindings)
	if err != nil {
		return nil, err
	}
	args := bound.([]any)
	for i, arg := range args {
		args[i] = encodeValue(arg)
	}

	switch construct {
	case ConstructSelect:
		var rows []orm.Params
		if _, err := e.executor().Raw(statement.sql, args...).Values(&rows); err != nil {
			return nil, newError("execute select on entity "+entity, err)
		}
		records := make([]Record, 0, len(rows))
		for _, row := range rows {
			records = append(records, e.decodeRow(entity, row))
		}
		return &Result{Records: records, Affected: int64(len(records))}, nil
	case ConstructDelete:
		result, err := e.executor().Raw(statement.sql, args...).Exec()
		if err != nil {
			return nil, newError("execute delete on entity "+entity, err)
		}
		affected, _ := result.RowsAffected()
		return &Result{Affected: affected}, nil
	default:
		return nil, unsupportedError(e.Name(), "construct "+string(construct))
	}
}

// Count 统计实体的记录数。
func (e *RecordEngine) Count(entity string, compiled CompiledQuery, bindings map[string]any) (int64, error) {
	sql := "SELECT COUNT(*) FROM `" + entity + "`"
	args := make([]any, 0)
	if compiled != nil {
		statement, ok := compiled.(*recordStatement)
		if !ok {
			return 0, newError("foreign compiled query for record engine", nil)
		}
		if !XString.IsEmpty(statement.where) {
			bound, err := statement.Bind(bindings)
			if err != nil {
				return 0, err
			}
			for _, arg := range bound.([]any) {
				args = append(args, encodeValue(arg))
			}
			sql += " WHERE " + statement.where
		}
	}
	var values orm.ParamsList
	if _, err := e.executor().Raw(sql, args...).ValuesFlat(&values); err != nil {
		return 0, newError("count records of entity "+entity, err)
	}
	if len(values) == 0 || values[0] == nil {
		return 0, nil
	}
	counted, _ := strconv.ParseInt(XString.Format("%v", values[0]), 10, 64)
	return counted, nil
}

// Increment 原子地对数值字段加上增量并返回新值。
// 操作在事务内完成，已有活动事务时融入该事务。
func (e *RecordEngine) Increment(entity string, id any, field string, delta int) (int, error) {
	owned := false
	if _, active := e.txs.Load(goid.Get()); !active {
		if err := e.Trx(); err != nil {
			return 0, err
		}
		owned = true
	}
	executor := e.executor()

	if _, err := executor.Raw("UPDATE `"+entity+"` SET `"+field+"` = COALESCE(`"+field+"`, 0) + ? WHERE `"+IdKey+"` = ?",
		delta, e.FormatId(id)).Exec(); err != nil {
		if owned {
			e.Rollback()
		}
		return 0, newError("increment field "+field+" of entity "+entity, err)
	}
	var values orm.ParamsList
	if _, err := executor.Raw("SELECT `"+field+"` FROM `"+entity+"` WHERE `"+IdKey+"` = ?", e.FormatId(id)).ValuesFlat(&values); err != nil {
		if owned {
			e.Rollback()
		}
		return 0, newError("read field "+field+" of entity "+entity, err)
	}
	if len(values) == 0 {
		if owned {
			e.Rollback()
		}
		return 0, newError("record "+e.FormatId(id)+" of entity "+entity+" is gone", nil)
	}
	value, _ := strconv.Atoi(XString.Format("%v", values[0]))
	if owned {
		if err := e.Commit(); err != nil {
			return 0, err
		}
	}
	return value, nil
}

// Trx 开启当前执行流的事务，重复开启是无害的。
func (e *RecordEngine) Trx() error {
	gid := goid.Get()
	if _, active := e.txs.Load(gid); active {
		return nil
	}
	ormer := orm.NewOrmUsingDB(e.alias)
	tx, err := ormer.Begin()
	if err != nil {
		return newError("begin transaction of "+e.alias, err)
	}
	e.txs.Store(gid, tx)
	return nil
}

// Commit 提交当前执行流的事务。
func (e *RecordEngine) Commit() error {
	gid := goid.Get()
	tx, active := e.txs.Load(gid)
	if !active {
		return newError("commit without active transaction", nil)
	}
	e.txs.Delete(gid)
	if err := tx.(orm.TxOrmer).Commit(); err != nil {
		return newError("commit transaction of "+e.alias, err)
	}
	return nil
}

// Rollback 回滚当前执行流的事务。
func (e *RecordEngine) Rollback() error {
	gid := goid.Get()
	tx, active := e.txs.Load(gid)
	if !active {
		return newError("rollback without active transaction", nil)
	}
	e.txs.Delete(gid)
	if err := tx.(orm.TxOrmer).Rollback(); err != nil {
		return newError("rollback transaction of "+e.alias, err)
	}
	return nil
}

// Describe 获取引擎的描述信息，包含各实体的字段与记录数。
func (e *RecordEngine) Describe() (Record, error) {
	e.mu.RLock()
	entities := make([]string, 0, len(e.schemas))
	for entity := range e.schemas {
		entities = append(entities, entity)
	}
	e.mu.RUnlock()

	described := make([]any, 0, len(entities))
	for _, entity := range entities {
		count, err := e.Count(entity, nil, nil)
		if err != nil {
			return nil, err
		}
		fields := make([]any, 0)
		e.mu.RLock()
		for _, field := range e.schemas[entity] {
			fields = append(fields, Record{"name": field.Name, "type": string(field.Type)})
		}
		e.mu.RUnlock()
		described = append(described, Record{"name": entity, TotalKey: count, "fields": fields})
	}
	return Record{"name": e.Name(), "entities": described}, nil
}

// FormatId 将标识格式化为字符串形态。
func (e *RecordEngine) FormatId(id any) string {
	return XString.Format("%v", id)
}

// Compile 编译查询为 SQL 语句。
func (e *RecordEngine) Compile(query *Query) (CompiledQuery, error) {
	return compileRecordQuery(e.Name(), query)
}

var _ Engine = (*RecordEngine)(nil)
