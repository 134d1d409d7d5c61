// Package schema file: internal/core/schema/verify.go
package schema

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/luiz158/isar/internal/core/domain"
)

var validate = validator.New()

// Verify 对 schema 做结构性校验。
// 通过分为两步：先用 validator 校验结构完整性（必填字段、最小长度），
// 再做语义校验（名称唯一性、索引/链接引用的可解析性）。
// 任何一条不满足即返回错误，错误信息中携带出错的集合/属性名。
func Verify(s *domain.Schema) error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("schema 结构校验失败: %w", err)
	}

	collectionNames := make(map[string]struct{}, len(s.Collections))
	for i := range s.Collections {
		col := &s.Collections[i]
		if _, dup := collectionNames[col.Name]; dup {
			return fmt.Errorf("集合名称 '%s' 重复声明", col.Name)
		}
		collectionNames[col.Name] = struct{}{}
	}

	for i := range s.Collections {
		if err := verifyCollection(s, &s.Collections[i]); err != nil {
			return err
		}
	}
	return nil
}

// verifyCollection 校验单个集合：属性名唯一、类型合法、索引与链接可解析。
func verifyCollection(s *domain.Schema, col *domain.CollectionSchema) error {
	propNames := make(map[string]struct{}, len(col.Properties))
	for _, p := range col.Properties {
		if !p.Type.Valid() {
			return fmt.Errorf("集合 '%s' 中存在未知的属性类型 '%s'", col.Name, p.Type)
		}
		if p.Name == nil {
			// 无名属性仅作结构用途，不参与唯一性检查
			continue
		}
		if *p.Name == "" {
			return fmt.Errorf("集合 '%s' 中存在空属性名", col.Name)
		}
		if _, dup := propNames[*p.Name]; dup {
			return fmt.Errorf("集合 '%s' 中属性名 '%s' 重复声明", col.Name, *p.Name)
		}
		propNames[*p.Name] = struct{}{}

		if p.Target != nil {
			if !collectionDeclared(s, *p.Target) {
				return fmt.Errorf("集合 '%s' 的链接属性 '%s' 指向未声明的集合 '%s'", col.Name, *p.Name, *p.Target)
			}
		}
	}

	indexNames := make(map[string]struct{}, len(col.Indexes))
	for _, idx := range col.Indexes {
		if _, dup := indexNames[idx.Name]; dup {
			return fmt.Errorf("集合 '%s' 中索引名 '%s' 重复声明", col.Name, idx.Name)
		}
		indexNames[idx.Name] = struct{}{}

		for _, propName := range idx.Properties {
			if _, ok := propNames[propName]; !ok {
				return fmt.Errorf("集合 '%s' 的索引 '%s' 引用了不存在的属性 '%s'", col.Name, idx.Name, propName)
			}
		}
	}
	return nil
}

func collectionDeclared(s *domain.Schema, name string) bool {
	for i := range s.Collections {
		if s.Collections[i].Name == name {
			return true
		}
	}
	return false
}
