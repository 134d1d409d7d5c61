// Package sqlite file: internal/adapter/engine/sqlite/instance.go
package sqlite

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/luiz158/isar/internal/core/domain"
	"github.com/luiz158/isar/internal/core/port"
	"github.com/luiz158/isar/internal/core/schema"
	"github.com/luiz158/isar/internal/isarobserve"
)

// 断言 *Instance 实现 port.Instance 接口，编译期校验
var _ port.Instance = (*Instance)(nil)

const (
	// fileExt 是实例存储文件的固定后缀
	fileExt = ".sqlite"

	sqlCacheSize = 256
	sqlCacheTTL  = 30 * time.Minute
)

// Instance 代表一个已打开的命名数据库。
// collections、collectionIDs、fingerprint、path 构建完成后不再变化，
// 可被任意多个 goroutine 无锁并发读取；唯一会变的状态是连接池。
type Instance struct {
	name        string
	path        string
	fingerprint uint64

	collections   map[uint64]*domain.Collection
	collectionIDs []uint64

	pool *connPool

	// sqlCache 缓存已编译查询的 SQL 文本，键为查询签名
	sqlCache *lru.LRU[string, string]
}

// openInstance 构建一个全新的实例：校验 schema → 计算指纹 →
// 解析存储路径 → 打开连接 → 执行迁移 → 派生集合注册表。
// 任何一步失败都是致命的，不会产生半成品实例。
func openInstance(name, dir string, s domain.Schema) (*Instance, error) {
	if dir == "" {
		return nil, fmt.Errorf("打开实例 '%s': %w", name, port.ErrMissingDirectory)
	}

	if err := schema.Verify(&s); err != nil {
		return nil, fmt.Errorf("实例 '%s' 的 schema 非法: %w", name, err)
	}
	fingerprint := schema.Fingerprint(&s)

	path := filepath.Join(dir, name+fileExt)

	conn, err := openConn(path)
	if err != nil {
		return nil, err
	}

	sm := &schemaManager{conn: conn}
	if err := sm.migrate(&s); err != nil {
		_ = conn.Close()
		return nil, err
	}

	collections, collectionIDs := buildCollections(&s)

	inst := &Instance{
		name:          name,
		path:          path,
		fingerprint:   fingerprint,
		collections:   collections,
		collectionIDs: collectionIDs,
		pool:          newConnPool(path),
		sqlCache:      lru.NewLRU[string, string](sqlCacheSize, nil, sqlCacheTTL),
	}

	// 迁移用过的连接还能用，作为第一条空闲连接回池
	inst.pool.release(conn)

	slog.Info("实例构建完成",
		"name", name,
		"path", path,
		"fingerprint", fmt.Sprintf("%016x", fingerprint),
		"collections", len(collectionIDs),
	)
	return inst, nil
}

// Name 返回实例在注册表中的身份键。
func (inst *Instance) Name() string { return inst.name }

// Path 返回解析后的存储文件位置。
func (inst *Instance) Path() string { return inst.path }

// SchemaFingerprint 返回构建时计算的 schema 指纹。
func (inst *Instance) SchemaFingerprint() uint64 { return inst.fingerprint }

// CollectionIDAt 按 schema 声明顺序做位置查找，越界返回 false。
func (inst *Instance) CollectionIDAt(index int) (uint64, bool) {
	if index < 0 || index >= len(inst.collectionIDs) {
		return 0, false
	}
	return inst.collectionIDs[index], true
}

// CollectionIDByName 按集合名称查找 id。
func (inst *Instance) CollectionIDByName(name string) (uint64, bool) {
	for id, col := range inst.collections {
		if col.Name == name {
			return id, true
		}
	}
	return 0, false
}

// Collections 返回声明顺序的集合描述符序列（供元数据展示）。
func (inst *Instance) Collections() []*domain.Collection {
	out := make([]*domain.Collection, 0, len(inst.collectionIDs))
	for _, id := range inst.collectionIDs {
		out = append(out, inst.collections[id])
	}
	return out
}

// BeginTxn 从池中为调用方取一条独占连接并开启引擎级事务。
// 开启失败的连接状态不可信，直接关闭而不回池。
func (inst *Instance) BeginTxn(write bool) (port.Txn, error) {
	conn, err := inst.pool.acquire()
	if err != nil {
		return nil, err
	}
	txn, err := beginTxn(conn, write)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return txn, nil
}

// CommitTxn 提交事务。成功后连接回池；引擎级提交失败时错误上抛，
// 连接被显式关闭放弃 —— 提交失败后它的事务状态无法信任。
func (inst *Instance) CommitTxn(txn port.Txn) error {
	t, err := inst.ownTxn(txn)
	if err != nil {
		return err
	}
	conn, err := t.commit()
	if err != nil {
		if errors.Is(err, port.ErrTxnConsumed) {
			return err
		}
		isarobserve.CommitFailures.Inc()
		isarobserve.ConnDropped.Inc()
		if conn != nil {
			_ = conn.Close()
		}
		return fmt.Errorf("实例 '%s' 提交事务失败: %w", inst.name, err)
	}
	inst.pool.release(conn)
	isarobserve.TxnCommits.Inc()
	return nil
}

// AbortTxn 回滚事务，永不向调用方返回失败。
// 回滚成功的连接回池；回滚失败的连接被静默丢弃。
func (inst *Instance) AbortTxn(txn port.Txn) {
	t, err := inst.ownTxn(txn)
	if err != nil {
		return
	}
	conn, ok := t.abort()
	if conn == nil {
		return
	}
	if ok {
		inst.pool.release(conn)
	} else {
		isarobserve.ConnDropped.Inc()
		slog.Warn("事务回滚失败，连接已丢弃", "name", inst.name)
		_ = conn.Close()
	}
	isarobserve.TxnAborts.Inc()
}

// Query 为指定集合创建查询构建器。未知 id 在任何引擎交互之前失败。
// 构建器可以看到完整的集合注册表，链接/反链接解析需要同级集合的可见性。
func (inst *Instance) Query(collectionID uint64) (port.QueryBuilder, error) {
	col, ok := inst.collections[collectionID]
	if !ok {
		return nil, fmt.Errorf("实例 '%s' 查询集合 %d: %w", inst.name, collectionID, port.ErrInvalidCollectionID)
	}
	return newQueryBuilder(inst, col), nil
}

// Insert 在已开启的写事务上为指定集合创建插入构建器。
func (inst *Instance) Insert(txn port.Txn, collectionID uint64, count int) (port.Insert, error) {
	col, ok := inst.collections[collectionID]
	if !ok {
		return nil, fmt.Errorf("实例 '%s' 插入集合 %d: %w", inst.name, collectionID, port.ErrInvalidCollectionID)
	}
	t, err := inst.ownTxn(txn)
	if err != nil {
		return nil, err
	}
	if !t.write {
		return nil, fmt.Errorf("实例 '%s' 插入集合 '%s': %w", inst.name, col.Name, port.ErrTxnReadOnly)
	}
	if t.consumed.Load() {
		return nil, port.ErrTxnConsumed
	}
	return newInsert(t, col, count), nil
}

// cachedSQL 返回查询签名对应的 SQL 文本，不在缓存中时调用 build 编译。
func (inst *Instance) cachedSQL(key string, build func() string) string {
	if sql, ok := inst.sqlCache.Get(key); ok {
		return sql
	}
	sql := build()
	inst.sqlCache.Add(key, sql)
	return sql
}

// ownTxn 确认事务确实由本引擎创建。
func (inst *Instance) ownTxn(txn port.Txn) (*Txn, error) {
	t, ok := txn.(*Txn)
	if !ok || t == nil {
		return nil, fmt.Errorf("实例 '%s' 收到不属于此引擎的事务对象", inst.name)
	}
	return t, nil
}
