// file: internal/adapter/engine/sqlite/main_test.go
package sqlite

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luiz158/isar/internal/core/domain"
)

// 本包所有测试共享的 schema 构造辅助函数

func strPtr(s string) *string { return &s }

// testSchema 声明一个集合 "col"，带两个 Long 属性 prop1 / prop2
func testSchema() domain.Schema {
	return domain.Schema{
		Collections: []domain.CollectionSchema{
			{
				Name: "col",
				Properties: []domain.PropertySchema{
					{Name: strPtr("prop1"), Type: domain.TypeLong},
					{Name: strPtr("prop2"), Type: domain.TypeLong},
				},
			},
		},
	}
}

// openTestInstance 在独立的临时目录和全新注册表上打开测试实例
func openTestInstance(t *testing.T) (*Registry, *Instance) {
	t.Helper()
	registry := NewRegistry()
	inst, err := registry.OpenOrGet("test", t.TempDir(), testSchema())
	require.NoError(t, err)
	return registry, inst
}
