// Package sqlite file: internal/adapter/engine/sqlite/migrate.go
package sqlite

import (
	"fmt"
	"log/slog"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/luiz158/isar/internal/core/domain"
	"github.com/luiz158/isar/internal/isarobserve"
)

// idColumn 是每张集合表的主键列名，读写器的 0 号列。
const idColumn = "_id"

// schemaManager 把磁盘上的表结构对齐到已校验的 schema。
// 每次实例构建执行一次；迁移失败对构建是致命的，不会注册任何实例。
type schemaManager struct {
	conn *Conn
}

// migrate 在一个写事务内完成全部 DDL：
// 缺失的表被创建，已存在的表补齐新增列，索引按声明重建缺失的部分。
// 不删除多余的列或表 —— 收缩型变更留给上层工具处理。
func (sm *schemaManager) migrate(s *domain.Schema) error {
	if err := sm.conn.begin(true); err != nil {
		return fmt.Errorf("迁移开启事务失败: %w", err)
	}

	for i := range s.Collections {
		col := &s.Collections[i]
		if col.Embedded {
			// 内嵌集合没有独立的表
			continue
		}
		if err := sm.migrateCollection(col); err != nil {
			if rbErr := sm.conn.rollback(); rbErr != nil {
				slog.Warn("迁移回滚失败", "collection", col.Name, "error", rbErr)
			}
			return fmt.Errorf("迁移集合 '%s' 失败: %w", col.Name, err)
		}
	}

	if err := sm.conn.commit(); err != nil {
		return fmt.Errorf("迁移提交失败: %w", err)
	}
	isarobserve.MigrationRuns.Inc()
	return nil
}

// migrateCollection 对单个集合执行建表/补列/建索引。
func (sm *schemaManager) migrateCollection(col *domain.CollectionSchema) error {
	existing, err := sm.tableColumns(col.Name)
	if err != nil {
		return err
	}

	if existing == nil {
		if err := sm.createTable(col); err != nil {
			return err
		}
	} else {
		if err := sm.addMissingColumns(col, existing); err != nil {
			return err
		}
	}

	return sm.createIndexes(col)
}

// tableColumns 返回表的现有列集合；表不存在时返回 nil。
func (sm *schemaManager) tableColumns(table string) (map[string]struct{}, error) {
	var columns map[string]struct{}
	err := sqlitex.ExecuteTransient(sm.conn.db,
		fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)),
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				if columns == nil {
					columns = make(map[string]struct{})
				}
				columns[stmt.ColumnText(1)] = struct{}{}
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("读取表 '%s' 的列信息失败: %w", table, err)
	}
	return columns, nil
}

func (sm *schemaManager) createTable(col *domain.CollectionSchema) error {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	sb.WriteString(quoteIdent(col.Name))
	sb.WriteString(" (")
	sb.WriteString(quoteIdent(idColumn))
	sb.WriteString(" INTEGER PRIMARY KEY")
	for _, p := range col.Properties {
		if p.Name == nil {
			continue
		}
		sb.WriteString(", ")
		sb.WriteString(quoteIdent(*p.Name))
		sb.WriteString(" ")
		sb.WriteString(columnType(p))
	}
	sb.WriteString(")")

	if err := sm.conn.exec(sb.String()); err != nil {
		return fmt.Errorf("建表失败: %w", err)
	}
	slog.Info("迁移: 已创建集合表", "collection", col.Name)
	return nil
}

func (sm *schemaManager) addMissingColumns(col *domain.CollectionSchema, existing map[string]struct{}) error {
	for _, p := range col.Properties {
		if p.Name == nil {
			continue
		}
		if _, ok := existing[*p.Name]; ok {
			continue
		}
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			quoteIdent(col.Name), quoteIdent(*p.Name), columnType(p))
		if err := sm.conn.exec(ddl); err != nil {
			return fmt.Errorf("补充列 '%s' 失败: %w", *p.Name, err)
		}
		slog.Info("迁移: 已补充列", "collection", col.Name, "property", *p.Name)
	}
	return nil
}

func (sm *schemaManager) createIndexes(col *domain.CollectionSchema) error {
	for _, idx := range col.Indexes {
		quoted := make([]string, 0, len(idx.Properties))
		for _, propName := range idx.Properties {
			quoted = append(quoted, quoteIdent(propName))
		}

		unique := ""
		if idx.Unique {
			unique = "UNIQUE "
		}
		indexName := fmt.Sprintf("idx_%s_%s", col.Name, idx.Name)
		ddl := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
			unique, quoteIdent(indexName), quoteIdent(col.Name), strings.Join(quoted, ", "))
		if err := sm.conn.exec(ddl); err != nil {
			return fmt.Errorf("创建索引 '%s' 失败: %w", idx.Name, err)
		}
	}
	return nil
}

// columnType 把声明类型映射为 SQLite 列类型。链接属性落库为目标 id。
func columnType(p domain.PropertySchema) string {
	if p.Target != nil {
		return "INTEGER"
	}
	switch p.Type {
	case domain.TypeBool, domain.TypeByte, domain.TypeInt, domain.TypeLong:
		return "INTEGER"
	case domain.TypeFloat, domain.TypeDouble:
		return "REAL"
	default:
		return "TEXT"
	}
}
