// Package sqlite file: internal/adapter/engine/sqlite/helpers.go
package sqlite

import (
	"fmt"
	"strings"

	"zombiezen.com/go/sqlite"
)

// quoteIdent 把标识符安全地包进双引号，内部的双引号按 SQL 规则转义。
// 集合名与属性名来自用户 schema，绝不能直接拼进 SQL。
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// bindValue 按 Go 值的动态类型绑定语句参数（参数位从 1 开始）。
func bindValue(stmt *sqlite.Stmt, param int, value any) error {
	switch v := value.(type) {
	case nil:
		stmt.BindNull(param)
	case bool:
		stmt.BindBool(param, v)
	case int:
		stmt.BindInt64(param, int64(v))
	case int32:
		stmt.BindInt64(param, int64(v))
	case int64:
		stmt.BindInt64(param, v)
	case uint64:
		stmt.BindInt64(param, int64(v))
	case float32:
		stmt.BindFloat(param, float64(v))
	case float64:
		stmt.BindFloat(param, v)
	case string:
		stmt.BindText(param, v)
	case []byte:
		stmt.BindBytes(param, v)
	default:
		return fmt.Errorf("不支持的绑定值类型 %T", value)
	}
	return nil
}
