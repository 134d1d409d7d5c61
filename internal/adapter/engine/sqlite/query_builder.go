// Package sqlite file: internal/adapter/engine/sqlite/query_builder.go
package sqlite

import (
	"fmt"
	"strings"

	"zombiezen.com/go/sqlite"

	"github.com/luiz158/isar/internal/core/domain"
	"github.com/luiz158/isar/internal/core/port"
)

// 断言编译期接口一致性
var (
	_ port.QueryBuilder = (*QueryBuilder)(nil)
	_ port.Query        = (*Query)(nil)
	_ port.Cursor       = (*Cursor)(nil)
	_ port.Reader       = (*rowReader)(nil)
)

const (
	opIsNull  = "isnull"
	opNotNull = "notnull"
	opEq      = "eq"
)

type cond struct {
	op    string
	prop  int
	value any
}

type sortSpec struct {
	prop      int
	ascending bool
}

// QueryBuilder 把逻辑查询累积为针对集合表的 SQL。
// 构建器持有完整的集合注册表而不只是目标集合：
// 解析集合间的链接/反链接需要同级集合的可见性。
type QueryBuilder struct {
	inst     *Instance
	col      *domain.Collection
	siblings map[uint64]*domain.Collection
	conds    []cond
	sorts    []sortSpec
}

func newQueryBuilder(inst *Instance, col *domain.Collection) *QueryBuilder {
	return &QueryBuilder{inst: inst, col: col, siblings: inst.collections}
}

// WhereIsNull 追加「属性为 NULL」过滤条件。
func (qb *QueryBuilder) WhereIsNull(propertyIndex int) {
	qb.conds = append(qb.conds, cond{op: opIsNull, prop: propertyIndex})
}

// WhereNotNull 追加「属性非 NULL」过滤条件。
func (qb *QueryBuilder) WhereNotNull(propertyIndex int) {
	qb.conds = append(qb.conds, cond{op: opNotNull, prop: propertyIndex})
}

// WhereEq 追加「属性等于给定值」过滤条件。
func (qb *QueryBuilder) WhereEq(propertyIndex int, value any) {
	qb.conds = append(qb.conds, cond{op: opEq, prop: propertyIndex, value: value})
}

// SortBy 追加排序键。未指定任何排序时按 _id 升序，即插入顺序。
func (qb *QueryBuilder) SortBy(propertyIndex int, ascending bool) {
	qb.sorts = append(qb.sorts, sortSpec{prop: propertyIndex, ascending: ascending})
}

// Build 编译为可重复执行的查询。编译结果按签名缓存在实例级 LRU 中。
func (qb *QueryBuilder) Build() port.Query {
	sql := qb.inst.cachedSQL(qb.signature(), qb.compile)

	var args []any
	for _, c := range qb.conds {
		if c.op == opEq {
			args = append(args, c.value)
		}
	}
	return &Query{inst: qb.inst, col: qb.col, sql: sql, args: args}
}

// signature 生成与参数值无关的查询签名，作为 SQL 缓存键。
func (qb *QueryBuilder) signature() string {
	var sb strings.Builder
	sb.WriteString(qb.col.Name)
	for _, c := range qb.conds {
		fmt.Fprintf(&sb, "|%s:%d", c.op, c.prop)
	}
	for _, s := range qb.sorts {
		fmt.Fprintf(&sb, "|sort:%d:%t", s.prop, s.ascending)
	}
	return sb.String()
}

func (qb *QueryBuilder) compile() string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(quoteIdent(idColumn))
	for _, p := range qb.col.Properties {
		sb.WriteString(", ")
		sb.WriteString(quoteIdent(p.Name))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(qb.col.Name))

	if len(qb.conds) > 0 {
		sb.WriteString(" WHERE ")
		for i, c := range qb.conds {
			if i > 0 {
				sb.WriteString(" AND ")
			}
			column := quoteIdent(qb.propertyColumn(c.prop))
			switch c.op {
			case opIsNull:
				sb.WriteString(column + " IS NULL")
			case opNotNull:
				sb.WriteString(column + " IS NOT NULL")
			case opEq:
				sb.WriteString(column + " = ?")
			}
		}
	}

	sb.WriteString(" ORDER BY ")
	if len(qb.sorts) == 0 {
		sb.WriteString(quoteIdent(idColumn) + " ASC")
	} else {
		for i, s := range qb.sorts {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(quoteIdent(qb.propertyColumn(s.prop)))
			if s.ascending {
				sb.WriteString(" ASC")
			} else {
				sb.WriteString(" DESC")
			}
		}
	}
	return sb.String()
}

// propertyColumn 把属性下标换成列名，越界按 _id 处理。
func (qb *QueryBuilder) propertyColumn(propertyIndex int) string {
	if propertyIndex < 0 || propertyIndex >= len(qb.col.Properties) {
		return idColumn
	}
	return qb.col.Properties[propertyIndex].Name
}

// Query 是已构建完成的查询，可在多个事务上重复执行。
type Query struct {
	inst *Instance
	col  *domain.Collection
	sql  string
	args []any
}

// Cursor 在给定事务上执行查询，返回按行遍历的游标。
func (q *Query) Cursor(txn port.Txn) (port.Cursor, error) {
	t, err := q.inst.ownTxn(txn)
	if err != nil {
		return nil, err
	}
	if t.consumed.Load() {
		return nil, port.ErrTxnConsumed
	}

	stmt := t.conn.prep(q.sql)
	if err := stmt.Reset(); err != nil {
		return nil, fmt.Errorf("查询 '%s' 重置语句失败: %w", q.col.Name, err)
	}
	if err := stmt.ClearBindings(); err != nil {
		return nil, fmt.Errorf("查询 '%s' 清空绑定失败: %w", q.col.Name, err)
	}
	for i, arg := range q.args {
		if err := bindValue(stmt, i+1, arg); err != nil {
			return nil, fmt.Errorf("查询 '%s' 绑定第 %d 个参数失败: %w", q.col.Name, i+1, err)
		}
	}

	return &Cursor{stmt: stmt, reader: rowReader{stmt: stmt}}, nil
}

// Cursor 按行遍历查询结果，迭代协议与 database/sql 的 Rows 一致。
type Cursor struct {
	stmt   *sqlite.Stmt
	reader rowReader
	err    error
	done   bool
}

// Next 推进到下一行，没有更多行或出错时返回 false。
func (c *Cursor) Next() bool {
	if c.done || c.err != nil {
		return false
	}
	hasRow, err := c.stmt.Step()
	if err != nil {
		c.err = err
		return false
	}
	if !hasRow {
		c.done = true
		return false
	}
	return true
}

// Reader 返回当前行的读取器，仅在下一次 Next 之前有效。
func (c *Cursor) Reader() port.Reader { return &c.reader }

// Err 返回迭代过程中遇到的第一个错误。
func (c *Cursor) Err() error { return c.err }

// Close 结束遍历。语句归属连接级缓存，这里只复位不销毁。
func (c *Cursor) Close() {
	_ = c.stmt.Reset()
}

// rowReader 按位读取当前行：0 号列固定是 _id，属性 i 在列 i+1。
type rowReader struct {
	stmt *sqlite.Stmt
}

func (r *rowReader) ReadID() int64 { return r.stmt.ColumnInt64(0) }

func (r *rowReader) IsNull(propertyIndex int) bool {
	return r.stmt.ColumnIsNull(propertyIndex + 1)
}

func (r *rowReader) ReadBool(propertyIndex int) bool {
	return r.stmt.ColumnInt64(propertyIndex+1) != 0
}

func (r *rowReader) ReadLong(propertyIndex int) int64 {
	return r.stmt.ColumnInt64(propertyIndex + 1)
}

func (r *rowReader) ReadDouble(propertyIndex int) float64 {
	return r.stmt.ColumnFloat(propertyIndex + 1)
}

func (r *rowReader) ReadString(propertyIndex int) string {
	return r.stmt.ColumnText(propertyIndex + 1)
}
