// Package sqlite file: internal/adapter/engine/sqlite/insert.go
package sqlite

import (
	"fmt"
	"strings"

	"zombiezen.com/go/sqlite"

	"github.com/luiz158/isar/internal/core/domain"
	"github.com/luiz158/isar/internal/core/port"
)

// 断言 *Insert 实现 port.Insert 接口，编译期校验
var _ port.Insert = (*Insert)(nil)

// Insert 是绑定到一个写事务的批量插入构建器。
// 写入协议是按位的：每个文档先 WriteID，再按集合声明顺序写出属性值，
// 然后 Save 落库。未写出的尾部属性以 NULL 落库。
// Write* 过程中的错误被暂存，统一在 Save 时上抛。
type Insert struct {
	txn  *Txn
	col  *domain.Collection
	stmt *sqlite.Stmt

	remaining int
	pos       int // 下一个待写属性的下标
	idSet     bool
	pending   error
}

func newInsert(t *Txn, col *domain.Collection, count int) *Insert {
	var sb strings.Builder
	sb.WriteString("INSERT OR REPLACE INTO ")
	sb.WriteString(quoteIdent(col.Name))
	sb.WriteString(" (")
	sb.WriteString(quoteIdent(idColumn))
	for _, p := range col.Properties {
		sb.WriteString(", ")
		sb.WriteString(quoteIdent(p.Name))
	}
	sb.WriteString(") VALUES (?")
	sb.WriteString(strings.Repeat(", ?", len(col.Properties)))
	sb.WriteString(")")

	ins := &Insert{
		txn:       t,
		col:       col,
		stmt:      t.conn.prep(sb.String()),
		remaining: count,
	}
	ins.resetRow()
	return ins
}

// WriteID 写出当前文档的主键。
func (ins *Insert) WriteID(id int64) {
	if ins.pending != nil {
		return
	}
	ins.stmt.BindInt64(1, id)
	ins.idSet = true
}

// WriteNull 将当前属性写为 NULL 并推进到下一个属性。
func (ins *Insert) WriteNull() {
	if param, ok := ins.nextParam(); ok {
		ins.stmt.BindNull(param)
	}
}

// WriteBool 写出布尔属性。
func (ins *Insert) WriteBool(v bool) {
	if param, ok := ins.nextParam(); ok {
		ins.stmt.BindBool(param, v)
	}
}

// WriteLong 写出整型属性（Byte/Int/Long 共用）。
func (ins *Insert) WriteLong(v int64) {
	if param, ok := ins.nextParam(); ok {
		ins.stmt.BindInt64(param, v)
	}
}

// WriteDouble 写出浮点属性（Float/Double 共用）。
func (ins *Insert) WriteDouble(v float64) {
	if param, ok := ins.nextParam(); ok {
		ins.stmt.BindFloat(param, v)
	}
}

// WriteString 写出字符串属性（String/Json 共用）。
func (ins *Insert) WriteString(v string) {
	if param, ok := ins.nextParam(); ok {
		ins.stmt.BindText(param, v)
	}
}

// Save 落库当前文档并推进到下一个。写满声明数量后继续调用报错。
func (ins *Insert) Save() error {
	if ins.pending != nil {
		err := ins.pending
		ins.pending = nil
		ins.resetRow()
		return err
	}
	if ins.remaining <= 0 {
		return port.ErrInsertExhausted
	}
	if !ins.idSet {
		return fmt.Errorf("集合 '%s' 插入失败: 必须先写入文档 id", ins.col.Name)
	}

	if _, err := ins.stmt.Step(); err != nil {
		ins.resetRow()
		return fmt.Errorf("集合 '%s' 插入文档失败: %w", ins.col.Name, err)
	}
	ins.remaining--
	ins.resetRow()
	return nil
}

// nextParam 返回当前属性对应的语句参数位并推进下标。
// 超过声明的属性数量时暂存错误，等 Save 上抛。
func (ins *Insert) nextParam() (int, bool) {
	if ins.pending != nil {
		return 0, false
	}
	if ins.pos >= len(ins.col.Properties) {
		ins.pending = fmt.Errorf("集合 '%s' 只有 %d 个属性，写入越界", ins.col.Name, len(ins.col.Properties))
		return 0, false
	}
	param := ins.pos + 2 // 参数位 1 被 _id 占用
	ins.pos++
	return param, true
}

// resetRow 复位语句，未绑定的参数在下一次 Step 时即为 NULL。
func (ins *Insert) resetRow() {
	_ = ins.stmt.Reset()
	_ = ins.stmt.ClearBindings()
	ins.pos = 0
	ins.idSet = false
}
