// Package sqlite file: internal/adapter/engine/sqlite/txn.go
package sqlite

import (
	"sync/atomic"

	"github.com/luiz158/isar/internal/core/port"
)

// 断言 *Txn 实现 port.Txn 接口，编译期校验
var _ port.Txn = (*Txn)(nil)

// Txn 在一次读或写事务期间独占一条 Conn。
// 状态机：Begun → Committed | Aborted，两个终态之外没有其他迁移。
// consumed 标记保证 commit/abort 只会生效一次，重复调用是调用方的
// 编程错误，会得到 ErrTxnConsumed（abort 路径则静默忽略）。
type Txn struct {
	conn     *Conn
	write    bool
	consumed atomic.Bool
}

// beginTxn 在给定连接上开启引擎级事务并包装为 Txn。
// 开启失败时连接原样返还给调用方处置。
func beginTxn(conn *Conn, write bool) (*Txn, error) {
	if err := conn.begin(write); err != nil {
		return nil, err
	}
	return &Txn{conn: conn, write: write}, nil
}

// Write 报告事务是否为写事务。
func (t *Txn) Write() bool { return t.write }

// commit 执行引擎级提交并让出连接的所有权。
// 成功时返回连接供回池；失败时连接同样交还，由调用方决定其命运
// （本实现选择显式关闭，见 Instance.CommitTxn）。
func (t *Txn) commit() (*Conn, error) {
	if !t.consumed.CompareAndSwap(false, true) {
		return nil, port.ErrTxnConsumed
	}
	conn := t.conn
	t.conn = nil
	if err := conn.commit(); err != nil {
		return conn, err
	}
	return conn, nil
}

// abort 尽力回滚。返回连接与回滚是否成功；
// 回滚失败的连接状态不可信，不能回池。
func (t *Txn) abort() (*Conn, bool) {
	if !t.consumed.CompareAndSwap(false, true) {
		return nil, false
	}
	conn := t.conn
	t.conn = nil
	if err := conn.rollback(); err != nil {
		return conn, false
	}
	return conn, true
}
