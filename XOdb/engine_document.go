// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XOdb

import (
	"context"
	"time"

	"github.com/eframework-org/GO.UTIL/XString"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// documentIdKey 是文档引擎内部的标识键名，对外统一转换为标识键。
const documentIdKey = "_id"

// DocumentEngine 是基于文档库的存储引擎。
// 实体映射为集合，记录按原始形态落库，标识使用 ObjectID。
// 引擎支持原子自增与全文检索，不支持事务。
type DocumentEngine struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewDocumentEngine 以连接地址和库名创建文档引擎。
func NewDocumentEngine(uri string, database string) (*DocumentEngine, error) {
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(uri))
	if err != nil {
		return nil, newError("connect document database "+database, err)
	}
	return &DocumentEngine{client: client, database: client.Database(database)}, nil
}

// Name 获取引擎名称。
func (e *DocumentEngine) Name() string { return "document/" + e.database.Name() }

// Supports 判断引擎能力，文档引擎支持原子自增与全文检索，不支持事务。
func (e *DocumentEngine) Supports(capability Capability) bool {
	switch capability {
	case CapabilityIncrement, CapabilityFullText:
		return true
	}
	return false
}

// normalizeId 将标识规范化为文档形态，合法的十六进制文本转为 ObjectID。
func normalizeId(id any) any {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v
	case string:
		if oid, err := primitive.ObjectIDFromHex(v); err == nil {
			return oid
		}
		return v
	default:
		return id
	}
}

// FormatId 将标识格式化为字符串形态。
func (e *DocumentEngine) FormatId(id any) string {
	if oid, ok := id.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return XString.Format("%v", id)
}

// toDocument 将记录转换为文档形态，标识键改写为内部键名。
func (e *DocumentEngine) toDocument(data Record) bson.M {
	doc := make(bson.M, len(data))
	for key, value := range data {
		if key == IdKey {
			doc[documentIdKey] = normalizeId(value)
			continue
		}
		doc[key] = value
	}
	return doc
}

// fromDocument 将文档转换为记录形态，内部键名与驱动类型退化为通用形态。
func (e *DocumentEngine) fromDocument(doc bson.M) Record {
	record := make(Record, len(doc))
	for key, value := range doc {
		if key == documentIdKey {
			record[IdKey] = e.FormatId(value)
			continue
		}
		record[key] = fromDocumentValue(value)
	}
	return record
}

// fromDocumentValue 将驱动类型的值退化为通用形态。
func fromDocumentValue(value any) any {
	switch v := value.(type) {
	case primitive.DateTime:
		return v.Time().UTC()
	case primitive.ObjectID:
		return v.Hex()
	case primitive.A:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = fromDocumentValue(item)
		}
		return out
	case bson.M:
		out := make(Record, len(v))
		for key, item := range v {
			out[key] = fromDocumentValue(item)
		}
		return out
	case bson.D:
		out := make(Record, len(v))
		for _, item := range v {
			out[item.Key] = fromDocumentValue(item.Value)
		}
		return out
	case time.Time:
		return v.UTC()
	default:
		return value
	}
}

// CreateEntity 创建集合，带唯一约束的字段建立唯一索引。
func (e *DocumentEngine) CreateEntity(entity string, fields ...Field) error {
	if XString.IsEmpty(entity) {
		return ErrNilEntity
	}
	ctx := context.Background()
	exist, err := e.IsEntity(entity)
	if err != nil {
		return err
	}
	if !exist {
		if err := e.database.CreateCollection(ctx, entity); err != nil {
			return newError("create entity "+entity, err)
		}
	}
	for _, field := range fields {
		if !field.Unique {
			continue
		}
		index := mongo.IndexModel{
			Keys:    bson.D{{Key: field.Name, Value: 1}},
			Options: options.Index().SetUnique(true),
		}
		if _, err := e.database.Collection(entity).Indexes().CreateOne(ctx, index); err != nil {
			return newError("index field "+field.Name+" of entity "+entity, err)
		}
	}
	return nil
}

// IsEntity 判断集合是否存在。
func (e *DocumentEngine) IsEntity(entity string) (bool, error) {
	names, err := e.database.ListCollectionNames(context.Background(), bson.M{"name": entity})
	if err != nil {
		return false, newError("list entities", err)
	}
	return len(names) > 0, nil
}

// Drop 删除集合。
func (e *DocumentEngine) Drop(entity string) error {
	if err := e.database.Collection(entity).Drop(context.Background()); err != nil {
		return newError("drop entity "+entity, err)
	}
	return nil
}

// Get 按标识获取单条记录。
func (e *DocumentEngine) Get(entity string, id any) (Record, error) {
	var doc bson.M
	err := e.database.Collection(entity).FindOne(context.Background(),
		bson.M{documentIdKey: normalizeId(id)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, newError("get record of entity "+entity, err)
	}
	return e.fromDocument(doc), nil
}

// Insert 写入新记录，标识缺失时生成 ObjectID。
func (e *DocumentEngine) Insert(entity string, data Record) (any, error) {
	doc := e.toDocument(data)
	if _, exist := doc[documentIdKey]; !exist {
		doc[documentIdKey] = primitive.NewObjectID()
	}
	if _, err := e.database.Collection(entity).InsertOne(context.Background(), doc); err != nil {
		return nil, newError("insert record of entity "+entity, err)
	}
	return doc[documentIdKey], nil
}

// Update 按标识更新记录。
func (e *DocumentEngine) Update(entity string, id any, set Record, unset []string) error {
	if id == nil {
		return ErrNilId
	}
	update := bson.M{}
	if len(set) > 0 {
		fields := make(bson.M, len(set))
		for key, value := range set {
			if key == IdKey {
				continue
			}
			fields[key] = value
		}
		update["$set"] = fields
	}
	if len(unset) > 0 {
		fields := make(bson.M, len(unset))
		for _, key := range unset {
			fields[key] = ""
		}
		update["$unset"] = fields
	}
	if len(update) == 0 {
		return nil
	}
	if _, err := e.database.Collection(entity).UpdateByID(context.Background(), normalizeId(id), update); err != nil {
		return newError("update record of entity "+entity, err)
	}
	return nil
}

// Delete 按标识删除记录。
func (e *DocumentEngine) Delete(entity string, id any) (int, error) {
	if id == nil {
		return 0, ErrNilId
	}
	result, err := e.database.Collection(entity).DeleteOne(context.Background(), bson.M{documentIdKey: normalizeId(id)})
	if err != nil {
		return 0, newError("delete record of entity "+entity, err)
	}
	return int(result.DeletedCount), nil
}

// Compile 编译查询为文档形态的语句。
func (e *DocumentEngine) Compile(query *Query) (CompiledQuery, error) {
	if query == nil {
		return nil, ErrNilQuery
	}
	walker := &documentWalker{}
	if err := WalkQuery(query, walker); err != nil {
		return nil, err
	}
	return &documentStatement{
		construct:  query.Construct,
		filter:     walker.filter,
		sort:       walker.sort,
		projection: walker.projection,
		skip:       walker.skip,
		limit:      walker.limit,
		bindings:   walker.bindings,
	}, nil
}

// Execute 执行编译产物。
func (e *DocumentEngine) Execute(entity string, construct Construct, compiled CompiledQuery, bindings map[string]any) (*Result, error) {
	statement, ok := compiled.(*documentStatement)
	if !ok {
		return nil, newError("foreign compiled query for document engine", nil)
	}
	bound, err := statement.Bind(bindings)
	if err != nil {
		return nil, err
	}
	filter := bound.(bson.D)
	if len(filter) == 0 {
		filter = bson.D{}
	}
	ctx := context.Background()

	switch construct {
	case ConstructSelect:
		opts := options.Find()
		if statement.skip > 0 {
			opts.SetSkip(statement.skip)
		}
		if statement.limit > 0 {
			opts.SetLimit(statement.limit)
		}
		if len(statement.sort) > 0 {
			opts.SetSort(statement.sort)
		}
		if len(statement.projection) > 0 {
			opts.SetProjection(statement.projection)
		}
		cursor, err := e.database.Collection(entity).Find(ctx, filter, opts)
		if err != nil {
			return nil, newError("execute select on entity "+entity, err)
		}
		defer cursor.Close(ctx)

		records := make([]Record, 0)
		for cursor.Next(ctx) {
			var doc bson.M
			if err := cursor.Decode(&doc); err != nil {
				return nil, newError("decode record of entity "+entity, err)
			}
			records = append(records, e.fromDocument(doc))
		}
		if err := cursor.Err(); err != nil {
			return nil, newError("iterate records of entity "+entity, err)
		}
		return &Result{Records: records, Affected: int64(len(records))}, nil
	case ConstructDelete:
		result, err := e.database.Collection(entity).DeleteMany(ctx, filter)
		if err != nil {
			return nil, newError("execute delete on entity "+entity, err)
		}
		return &Result{Affected: result.DeletedCount}, nil
	default:
		return nil, unsupportedError(e.Name(), "construct "+string(construct))
	}
}

// Count 统计实体的记录数。
func (e *DocumentEngine) Count(entity string, compiled CompiledQuery, bindings map[string]any) (int64, error) {
	ctx := context.Background()
	if compiled == nil {
		count, err := e.database.Collection(entity).EstimatedDocumentCount(ctx)
		if err != nil {
			return 0, newError("count records of entity "+entity, err)
		}
		return count, nil
	}

	statement, ok := compiled.(*documentStatement)
	if !ok {
		return 0, newError("foreign compiled query for document engine", nil)
	}
	bound, err := statement.Bind(bindings)
	if err != nil {
		return 0, err
	}
	count, err := e.database.Collection(entity).CountDocuments(ctx, bound.(bson.D))
	if err != nil {
		return 0, newError("count records of entity "+entity, err)
	}
	return count, nil
}

// Increment 原子地对数值字段加上增量并返回新值。
func (e *DocumentEngine) Increment(entity string, id any, field string, delta int) (int, error) {
	if id == nil {
		return 0, ErrNilId
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After).SetUpsert(false)
	var doc bson.M
	err := e.database.Collection(entity).FindOneAndUpdate(context.Background(),
		bson.M{documentIdKey: normalizeId(id)},
		bson.M{"$inc": bson.M{field: delta}}, opts).Decode(&doc)
	if err != nil {
		return 0, newError("increment field "+field+" of entity "+entity, err)
	}
	switch v := doc[field].(type) {
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, newError("field "+field+" of entity "+entity+" is not numeric", nil)
	}
}

// Trx 不受支持。
func (e *DocumentEngine) Trx() error { return unsupportedError(e.Name(), "trx") }

// Commit 不受支持。
func (e *DocumentEngine) Commit() error { return unsupportedError(e.Name(), "commit") }

// Rollback 不受支持。
func (e *DocumentEngine) Rollback() error { return unsupportedError(e.Name(), "rollback") }

// Describe 获取引擎的描述信息，包含集合清单与记录数。
func (e *DocumentEngine) Describe() (Record, error) {
	ctx := context.Background()
	names, err := e.database.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, newError("list entities", err)
	}
	described := make([]any, 0, len(names))
	for _, name := range names {
		count, err := e.database.Collection(name).EstimatedDocumentCount(ctx)
		if err != nil {
			return nil, newError("count records of entity "+name, err)
		}
		described = append(described, Record{"name": name, TotalKey: count})
	}
	return Record{"name": e.Name(), "entities": described}, nil
}

// Close 断开与文档库的连接。
func (e *DocumentEngine) Close() error {
	return e.client.Disconnect(context.Background())
}

var _ Engine = (*DocumentEngine)(nil)

// documentStatement 是文档引擎的编译产物。
// 条件树中的命名占位符以 Binding 值留存，Bind 时在深拷贝上替换。
type documentStatement struct {
	construct  Construct
	filter     bson.D
	sort       bson.D
	projection bson.D
	skip       int64
	limit      int64
	bindings   map[string]any
}

// Query 获取编译出的条件树。
func (s *documentStatement) Query() any { return s.filter }

// Bindings 获取编译期登记的命名占位符。
func (s *documentStatement) Bindings() map[string]any { return s.bindings }

// Bind 以实际参数替换命名占位符，返回可执行的条件树。
// 替换在深拷贝上进行，产物自身保持不变。
func (s *documentStatement) Bind(bindings map[string]any) (any, error) {
	if len(s.bindings) == 0 {
		if s.filter == nil {
			return bson.D{}, nil
		}
		return s.filter, nil
	}
	bound, err := bindDocument(s.filter, bindings)
	if err != nil {
		return nil, err
	}
	return bound, nil
}

// bindDocument 深拷贝条件树并替换其中的命名占位符。
func bindDocument(doc bson.D, bindings map[string]any) (bson.D, error) {
	out := make(bson.D, len(doc))
	for i, entry := range doc {
		value, err := bindValue(entry.Value, bindings)
		if err != nil {
			return nil, err
		}
		out[i] = bson.E{Key: entry.Key, Value: value}
	}
	return out, nil
}

// bindValue 递归替换条件值中的命名占位符。
func bindValue(value any, bindings map[string]any) (any, error) {
	switch v := value.(type) {
	case Binding:
		bound, exist := bindings[string(v)]
		if !exist {
			return nil, newError("parameter "+string(v), ErrUnboundParameter)
		}
		return bound, nil
	case bson.D:
		return bindDocument(v, bindings)
	case bson.A:
		out := make(bson.A, len(v))
		for i, item := range v {
			bound, err := bindValue(item, bindings)
			if err != nil {
				return nil, err
			}
			out[i] = bound
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			bound, err := bindValue(item, bindings)
			if err != nil {
				return nil, err
			}
			out[i] = bound
		}
		return out, nil
	default:
		return value, nil
	}
}
