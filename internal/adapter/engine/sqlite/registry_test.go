// file: internal/adapter/engine/sqlite/registry_test.go
package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/luiz158/isar/internal/core/domain"
	"github.com/luiz158/isar/internal/core/port"
)

func TestRegistryOpenOrGet(t *testing.T) {
	t.Run("同名同schema应返回同一个实例", func(t *testing.T) {
		registry := NewRegistry()
		dir := t.TempDir()

		first, err := registry.OpenOrGet("db", dir, testSchema())
		require.NoError(t, err)
		second, err := registry.OpenOrGet("db", dir, testSchema())
		require.NoError(t, err)

		assert.Same(t, first, second)
	})

	t.Run("缺少存储目录应直接失败", func(t *testing.T) {
		registry := NewRegistry()
		_, err := registry.OpenOrGet("db", "", testSchema())
		assert.ErrorIs(t, err, port.ErrMissingDirectory)
	})

	t.Run("schema指纹不一致应报失配且不影响既有实例", func(t *testing.T) {
		registry := NewRegistry()
		dir := t.TempDir()

		inst, err := registry.OpenOrGet("db", dir, testSchema())
		require.NoError(t, err)

		other := testSchema()
		other.Collections[0].Properties = append(other.Collections[0].Properties,
			domain.PropertySchema{Name: strPtr("prop3"), Type: domain.TypeString})
		_, err = registry.OpenOrGet("db", dir, other)
		assert.ErrorIs(t, err, port.ErrSchemaMismatch)

		// 既有实例保持可用
		txn, err := inst.BeginTxn(false)
		require.NoError(t, err)
		inst.AbortTxn(txn)
	})

	t.Run("不同名称互不干扰", func(t *testing.T) {
		registry := NewRegistry()
		dir := t.TempDir()

		a, err := registry.OpenOrGet("a", dir, testSchema())
		require.NoError(t, err)
		b, err := registry.OpenOrGet("b", dir, testSchema())
		require.NoError(t, err)

		assert.NotSame(t, a, b)
		assert.NotEqual(t, a.Path(), b.Path())
		assert.ElementsMatch(t, []string{"a", "b"}, registry.Names())
	})

	t.Run("并发抢开同一名称只构建一个实例", func(t *testing.T) {
		registry := NewRegistry()
		dir := t.TempDir()

		results := make([]*Instance, 16)
		var g errgroup.Group
		for i := 0; i < len(results); i++ {
			i := i
			g.Go(func() error {
				inst, err := registry.OpenOrGet("db", dir, testSchema())
				results[i] = inst
				return err
			})
		}
		require.NoError(t, g.Wait())

		for _, inst := range results {
			assert.Same(t, results[0], inst)
		}
	})
}

func TestRegistryGet(t *testing.T) {
	registry := NewRegistry()

	_, exists := registry.Get("missing")
	assert.False(t, exists)

	inst, err := registry.OpenOrGet("db", t.TempDir(), testSchema())
	require.NoError(t, err)

	got, exists := registry.Get("db")
	require.True(t, exists)
	assert.Same(t, inst, got)
}

func TestInstanceCollectionLookup(t *testing.T) {
	_, inst := openTestInstance(t)

	t.Run("位置查找遵循声明顺序", func(t *testing.T) {
		id, ok := inst.CollectionIDAt(0)
		require.True(t, ok)

		byName, ok := inst.CollectionIDByName("col")
		require.True(t, ok)
		assert.Equal(t, byName, id)
	})

	t.Run("下标越界返回false", func(t *testing.T) {
		_, ok := inst.CollectionIDAt(1)
		assert.False(t, ok)
		_, ok = inst.CollectionIDAt(-1)
		assert.False(t, ok)
	})

	t.Run("未声明的集合名返回false", func(t *testing.T) {
		_, ok := inst.CollectionIDByName("ghost")
		assert.False(t, ok)
	})
}
