// Package port file: internal/core/port/engine.go
package port

import (
	"errors"

	"github.com/luiz158/isar/internal/core/domain"
)

// Standard errors
var (
	ErrMissingDirectory    = errors.New("必须提供有效的存储目录")
	ErrInvalidCollectionID = errors.New("无效的集合 id")
	ErrSchemaMismatch      = errors.New("同名实例已打开且 schema 指纹不一致")
	ErrTxnConsumed         = errors.New("事务已被提交或中止，不能再次使用")
	ErrTxnReadOnly         = errors.New("该操作需要一个写事务")
	ErrInsertExhausted     = errors.New("已写满声明的文档数量，不能继续插入")
)

// Engine 是存储后端的能力接口。
// 同一套调用方代码可以在实现了该接口的不同后端之间切换。
type Engine interface {
	// Open 打开（或复用）一个命名实例。dir 为必填项。
	Open(name, dir string, schema domain.Schema) (Instance, error)

	// Type 返回后端的类型标识符
	Type() string
}

// Instance 是一个已打开的命名数据库。
// 除连接池外的所有状态在构建完成后均不可变，可被多个 goroutine 并发读取。
type Instance interface {
	Name() string
	Path() string

	// SchemaFingerprint 返回构建时计算的 schema 指纹
	SchemaFingerprint() uint64

	// CollectionIDAt 按 schema 声明顺序做位置查找，越界返回 false
	CollectionIDAt(index int) (uint64, bool)

	// CollectionIDByName 按集合名称查找 id，未声明返回 false
	CollectionIDByName(name string) (uint64, bool)

	// BeginTxn 在调用方使用的连接上开启一个引擎级事务
	BeginTxn(write bool) (Txn, error)

	// CommitTxn 提交事务。提交失败时错误上抛，连接被放弃（不回池）。
	CommitTxn(txn Txn) error

	// AbortTxn 回滚事务。尽力而为，永不向调用方返回失败。
	AbortTxn(txn Txn)

	// Query 为指定集合创建查询构建器。查询执行时才需要事务。
	Query(collectionID uint64) (QueryBuilder, error)

	// Insert 在已开启的写事务上为指定集合创建插入构建器
	Insert(txn Txn, collectionID uint64, count int) (Insert, error)
}

// Txn 是一次读或写事务。整个生命周期独占一条连接，
// 被 CommitTxn 或 AbortTxn 消费之后不能再使用。
type Txn interface {
	Write() bool
}

// QueryBuilder 把针对集合的逻辑查询累积为引擎原生查询。
// propertyIndex 是属性在集合声明顺序（过滤无名属性后）中的下标。
type QueryBuilder interface {
	WhereIsNull(propertyIndex int)
	WhereNotNull(propertyIndex int)
	WhereEq(propertyIndex int, value any)
	SortBy(propertyIndex int, ascending bool)
	Build() Query
}

// Query 是一个已构建完成、可重复执行的查询。
type Query interface {
	Cursor(txn Txn) (Cursor, error)
}

// Cursor 按行遍历查询结果。
// 迭代模式与 database/sql 的 Rows 一致：Next 返回 false 后检查 Err。
type Cursor interface {
	Next() bool
	Reader() Reader
	Err() error
	Close()
}

// Reader 按位读取当前行。propertyIndex 的语义与 QueryBuilder 一致。
type Reader interface {
	ReadID() int64
	IsNull(propertyIndex int) bool
	ReadBool(propertyIndex int) bool
	ReadLong(propertyIndex int) int64
	ReadDouble(propertyIndex int) float64
	ReadString(propertyIndex int) string
}

// Writer 按声明顺序写出单个文档的属性值。
// WriteID 写主键；其余 Write 调用依次对应集合的各个属性，
// 未显式写出的尾部属性以 NULL 落库。
type Writer interface {
	WriteID(id int64)
	WriteNull()
	WriteBool(v bool)
	WriteLong(v int64)
	WriteDouble(v float64)
	WriteString(v string)
}

// Insert 是绑定到一个写事务的批量插入构建器。
// 每写完一个文档调用 Save 落库并推进到下一个文档，
// 总量不得超过创建时声明的数量。
type Insert interface {
	Writer
	Save() error
}
