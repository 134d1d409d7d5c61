// Package sqlite — 基于 SQLite 的文档数据库存储引擎适配器
// internal/adapter/engine/sqlite/conn.go
package sqlite

import (
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Conn 是对底层存储引擎的独占句柄，按路径打开。
// 同一时刻只允许一个持有者使用：空闲时停在连接池槽位，
// 活跃时归某个在途事务所有。绝不允许两个事务共用一条 Conn。
type Conn struct {
	path string
	db   *sqlite.Conn
}

// openConn 按路径打开一条新连接，并应用标准 pragma。
// WAL + busy_timeout 与 synchronous=NORMAL 是本引擎的固定组合，
// 允许同一文件上的多连接并发访问。
func openConn(path string) (*Conn, error) {
	db, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate|sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("打开数据库文件 '%s' 失败: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(db, pragma, nil); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("应用 %s 失败: %w", pragma, err)
		}
	}

	return &Conn{path: path, db: db}, nil
}

// exec 执行一条不返回行的语句。
func (c *Conn) exec(sql string, args ...any) error {
	return sqlitex.ExecuteTransient(c.db, sql, &sqlitex.ExecOptions{Args: args})
}

// prep 返回连接级缓存的预编译语句，编译错误延迟到 Step 时暴露。
func (c *Conn) prep(sql string) *sqlite.Stmt {
	return c.db.Prep(sql)
}

// begin 开启引擎级事务。写事务用 IMMEDIATE，立即抢占写锁，
// 避免稍后升级时才发现冲突。
func (c *Conn) begin(write bool) error {
	stmt := "BEGIN"
	if write {
		stmt = "BEGIN IMMEDIATE"
	}
	if err := sqlitex.ExecuteTransient(c.db, stmt, nil); err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	return nil
}

// commit 执行引擎级提交。
func (c *Conn) commit() error {
	if err := sqlitex.ExecuteTransient(c.db, "COMMIT", nil); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// rollback 执行引擎级回滚。
func (c *Conn) rollback() error {
	return sqlitex.ExecuteTransient(c.db, "ROLLBACK", nil)
}

// Close 释放引擎资源。
func (c *Conn) Close() error {
	return c.db.Close()
}
