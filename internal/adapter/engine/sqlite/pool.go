// Package sqlite file: internal/adapter/engine/sqlite/pool.go
package sqlite

import (
	"log/slog"
	"runtime"
	"sync"

	"github.com/luiz158/isar/internal/isarobserve"
)

// connPool 是实例私有的空闲连接存放处。
// 借还协议是严格线性的：acquire 把连接移出池子交给事务，
// release 在事务结束时放回。被借出的连接绝不会出现在 idle 列表里，
// 因此不可能被第二个借用者拿到。
//
// 空闲容量有上限：release 进一个已满的池子时，连接被直接关闭丢弃，
// 而不是无限囤积句柄。
type connPool struct {
	path string

	mu      sync.Mutex
	idle    []*Conn // LIFO，栈顶是最近归还的连接
	maxIdle int
	closed  bool
}

func newConnPool(path string) *connPool {
	maxIdle := runtime.NumCPU()
	if maxIdle < 4 {
		maxIdle = 4
	}
	return &connPool{path: path, maxIdle: maxIdle}
}

// acquire 为调用方提供一条独占连接：优先复用最近归还的空闲连接，
// 没有空闲连接时新开一条。池子为空时绝不阻塞、绝不报错 ——
// 这意味着一个调用方可以在未归还第一条连接前开启第二个事务，
// 两个事务各自持有独立的底层连接。
func (p *connPool) acquire() (*Conn, error) {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		isarobserve.PoolHits.Inc()
		return conn, nil
	}
	p.mu.Unlock()

	isarobserve.PoolMisses.Inc()
	return openConn(p.path)
}

// release 把连接放回空闲列表。池子已满（或已关闭）时关闭该连接，
// 每个槽位只保留最近归还的那一批连接。
func (p *connPool) release(conn *Conn) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	if !p.closed && len(p.idle) < p.maxIdle {
		p.idle = append(p.idle, conn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	isarobserve.ConnDropped.Inc()
	if err := conn.Close(); err != nil {
		slog.Warn("关闭多余空闲连接时发生错误", "path", p.path, "error", err)
	}
}

// close 关闭所有空闲连接。已借出的连接由持有它的事务负责。
func (p *connPool) close() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.closed = true
	p.mu.Unlock()

	for _, conn := range idle {
		if err := conn.Close(); err != nil {
			slog.Warn("关闭空闲连接时发生错误", "path", p.path, "error", err)
		}
	}
}
