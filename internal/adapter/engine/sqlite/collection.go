// Package sqlite file: internal/adapter/engine/sqlite/collection.go
package sqlite

import (
	"github.com/luiz158/isar/internal/core/domain"
	"github.com/luiz158/isar/internal/core/schema"
)

// buildCollections 从已校验的 schema 派生运行时集合注册表。
// 返回 id → 描述符的映射，以及与声明顺序一致的 id 序列（供位置查找）。
// 无名属性（例如隐式 backlink）不可独立寻址，在这里被过滤掉；
// 其余属性的相对顺序必须与声明顺序严格一致。
func buildCollections(s *domain.Schema) (map[uint64]*domain.Collection, []uint64) {
	collections := make(map[uint64]*domain.Collection, len(s.Collections))
	collectionIDs := make([]uint64, 0, len(s.Collections))

	for i := range s.Collections {
		colSchema := &s.Collections[i]

		properties := make([]domain.Property, 0, len(colSchema.Properties))
		for _, p := range colSchema.Properties {
			if p.Name == nil {
				continue
			}
			prop := domain.Property{Name: *p.Name, Type: p.Type}
			if p.Target != nil {
				prop.TargetID = schema.CollectionID(*p.Target)
			}
			properties = append(properties, prop)
		}

		id := schema.CollectionID(colSchema.Name)
		collections[id] = &domain.Collection{
			Name:       colSchema.Name,
			Properties: properties,
		}
		collectionIDs = append(collectionIDs, id)
	}

	return collections, collectionIDs
}
