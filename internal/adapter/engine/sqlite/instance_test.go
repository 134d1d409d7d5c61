// file: internal/adapter/engine/sqlite/instance_test.go
package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luiz158/isar/internal/core/domain"
	"github.com/luiz158/isar/internal/core/port"
)

// mustCollectionID 取出测试集合 "col" 的 id
func mustCollectionID(t *testing.T, inst *Instance) uint64 {
	t.Helper()
	id, ok := inst.CollectionIDByName("col")
	require.True(t, ok)
	return id
}

// insertTwoDocs 写入两个文档并提交:
//
//	id=1: prop1=997, prop2=NULL
//	id=2: prop1=998, prop2=1998
func insertTwoDocs(t *testing.T, inst *Instance, colID uint64) {
	t.Helper()
	txn, err := inst.BeginTxn(true)
	require.NoError(t, err)

	ins, err := inst.Insert(txn, colID, 2)
	require.NoError(t, err)

	ins.WriteID(1)
	ins.WriteLong(997)
	ins.WriteNull()
	require.NoError(t, ins.Save())

	ins.WriteID(2)
	ins.WriteLong(998)
	ins.WriteLong(1998)
	require.NoError(t, ins.Save())

	require.NoError(t, inst.CommitTxn(txn))
}

func TestInstanceLifecycle(t *testing.T) {
	_, inst := openTestInstance(t)
	colID := mustCollectionID(t, inst)

	insertTwoDocs(t, inst, colID)

	t.Run("提交后的文档可被查询到", func(t *testing.T) {
		builder, err := inst.Query(colID)
		require.NoError(t, err)
		query := builder.Build()

		txn, err := inst.BeginTxn(false)
		require.NoError(t, err)
		defer inst.AbortTxn(txn)

		cursor, err := query.Cursor(txn)
		require.NoError(t, err)
		defer cursor.Close()

		var ids []int64
		for cursor.Next() {
			ids = append(ids, cursor.Reader().ReadID())
		}
		require.NoError(t, cursor.Err())
		assert.Equal(t, []int64{1, 2}, ids, "无排序条件时应按插入顺序返回")
	})

	t.Run("NotNull过滤应只命中第二个文档", func(t *testing.T) {
		builder, err := inst.Query(colID)
		require.NoError(t, err)
		builder.WhereNotNull(1)
		query := builder.Build()

		txn, err := inst.BeginTxn(false)
		require.NoError(t, err)
		defer inst.AbortTxn(txn)

		cursor, err := query.Cursor(txn)
		require.NoError(t, err)
		defer cursor.Close()

		require.True(t, cursor.Next())
		r := cursor.Reader()
		assert.Equal(t, int64(2), r.ReadID())
		assert.False(t, r.IsNull(0))
		assert.Equal(t, int64(998), r.ReadLong(0))
		assert.Equal(t, int64(1998), r.ReadLong(1))
		assert.False(t, cursor.Next())
		require.NoError(t, cursor.Err())
	})

	t.Run("IsNull过滤应只命中第一个文档", func(t *testing.T) {
		builder, err := inst.Query(colID)
		require.NoError(t, err)
		builder.WhereIsNull(1)
		query := builder.Build()

		txn, err := inst.BeginTxn(false)
		require.NoError(t, err)
		defer inst.AbortTxn(txn)

		cursor, err := query.Cursor(txn)
		require.NoError(t, err)
		defer cursor.Close()

		require.True(t, cursor.Next())
		r := cursor.Reader()
		assert.Equal(t, int64(1), r.ReadID())
		assert.True(t, r.IsNull(1))
		assert.False(t, cursor.Next())
	})

	t.Run("Eq过滤与降序排序", func(t *testing.T) {
		builder, err := inst.Query(colID)
		require.NoError(t, err)
		builder.WhereEq(0, int64(998))
		query := builder.Build()

		txn, err := inst.BeginTxn(false)
		require.NoError(t, err)
		defer inst.AbortTxn(txn)

		cursor, err := query.Cursor(txn)
		require.NoError(t, err)
		defer cursor.Close()

		require.True(t, cursor.Next())
		assert.Equal(t, int64(2), cursor.Reader().ReadID())
		assert.False(t, cursor.Next())

		// 按 prop1 降序时 id=2 应排在前面
		sorted, err := inst.Query(colID)
		require.NoError(t, err)
		sorted.SortBy(0, false)
		sortedQuery := sorted.Build()

		cursor2, err := sortedQuery.Cursor(txn)
		require.NoError(t, err)
		defer cursor2.Close()

		require.True(t, cursor2.Next())
		assert.Equal(t, int64(2), cursor2.Reader().ReadID())
		require.True(t, cursor2.Next())
		assert.Equal(t, int64(1), cursor2.Reader().ReadID())
	})
}

func TestReadAfterCommitInsertionOrder(t *testing.T) {
	s := domain.Schema{
		Collections: []domain.CollectionSchema{
			{
				Name: "Test",
				Properties: []domain.PropertySchema{
					{Name: strPtr("prop1"), Type: domain.TypeString},
					{Name: strPtr("prop2"), Type: domain.TypeString},
				},
			},
		},
	}

	registry := NewRegistry()
	inst, err := registry.OpenOrGet("test", t.TempDir(), s)
	require.NoError(t, err)

	colID, ok := inst.CollectionIDByName("Test")
	require.True(t, ok)

	txn, err := inst.BeginTxn(true)
	require.NoError(t, err)
	ins, err := inst.Insert(txn, colID, 2)
	require.NoError(t, err)

	ins.WriteID(997)
	ins.WriteString("val1")
	ins.WriteString("vala")
	require.NoError(t, ins.Save())
	ins.WriteID(998)
	ins.WriteString("val2")
	ins.WriteString("valb")
	require.NoError(t, ins.Save())
	require.NoError(t, inst.CommitTxn(txn))

	// 同一调用方随后的读事务应按插入顺序看到两个文档
	builder, err := inst.Query(colID)
	require.NoError(t, err)
	builder.WhereNotNull(1)
	query := builder.Build()

	readTxn, err := inst.BeginTxn(false)
	require.NoError(t, err)
	defer inst.AbortTxn(readTxn)

	cursor, err := query.Cursor(readTxn)
	require.NoError(t, err)
	defer cursor.Close()

	require.True(t, cursor.Next())
	r := cursor.Reader()
	assert.Equal(t, int64(997), r.ReadID())
	assert.Equal(t, "val1", r.ReadString(0))
	assert.Equal(t, "vala", r.ReadString(1))

	require.True(t, cursor.Next())
	r = cursor.Reader()
	assert.Equal(t, int64(998), r.ReadID())
	assert.Equal(t, "val2", r.ReadString(0))
	assert.Equal(t, "valb", r.ReadString(1))

	assert.False(t, cursor.Next())
	require.NoError(t, cursor.Err())
}

func TestInstanceAbort(t *testing.T) {
	_, inst := openTestInstance(t)
	colID := mustCollectionID(t, inst)

	txn, err := inst.BeginTxn(true)
	require.NoError(t, err)

	ins, err := inst.Insert(txn, colID, 1)
	require.NoError(t, err)
	ins.WriteID(99)
	ins.WriteLong(1)
	ins.WriteLong(2)
	require.NoError(t, ins.Save())

	inst.AbortTxn(txn)

	// 中止的写入不可见
	builder, err := inst.Query(colID)
	require.NoError(t, err)
	query := builder.Build()

	readTxn, err := inst.BeginTxn(false)
	require.NoError(t, err)
	defer inst.AbortTxn(readTxn)

	cursor, err := query.Cursor(readTxn)
	require.NoError(t, err)
	defer cursor.Close()
	assert.False(t, cursor.Next())
	require.NoError(t, cursor.Err())
}

func TestInstanceTxnGuards(t *testing.T) {
	_, inst := openTestInstance(t)
	colID := mustCollectionID(t, inst)

	t.Run("重复提交应报事务已消费", func(t *testing.T) {
		txn, err := inst.BeginTxn(true)
		require.NoError(t, err)
		require.NoError(t, inst.CommitTxn(txn))
		assert.ErrorIs(t, inst.CommitTxn(txn), port.ErrTxnConsumed)
	})

	t.Run("提交后的中止是无害的空操作", func(t *testing.T) {
		txn, err := inst.BeginTxn(true)
		require.NoError(t, err)
		require.NoError(t, inst.CommitTxn(txn))
		inst.AbortTxn(txn)
		inst.AbortTxn(txn)
	})

	t.Run("已消费事务上不能再开游标", func(t *testing.T) {
		builder, err := inst.Query(colID)
		require.NoError(t, err)
		query := builder.Build()

		txn, err := inst.BeginTxn(false)
		require.NoError(t, err)
		inst.AbortTxn(txn)

		_, err = query.Cursor(txn)
		assert.ErrorIs(t, err, port.ErrTxnConsumed)
	})

	t.Run("只读事务上不能创建插入构建器", func(t *testing.T) {
		txn, err := inst.BeginTxn(false)
		require.NoError(t, err)
		defer inst.AbortTxn(txn)

		_, err = inst.Insert(txn, colID, 1)
		assert.ErrorIs(t, err, port.ErrTxnReadOnly)
	})

	t.Run("未知集合id在任何引擎交互前失败", func(t *testing.T) {
		_, err := inst.Query(0xdeadbeef)
		assert.ErrorIs(t, err, port.ErrInvalidCollectionID)

		txn, err := inst.BeginTxn(true)
		require.NoError(t, err)
		defer inst.AbortTxn(txn)

		_, err = inst.Insert(txn, 0xdeadbeef, 1)
		assert.ErrorIs(t, err, port.ErrInvalidCollectionID)
	})
}

func TestInsertLimits(t *testing.T) {
	_, inst := openTestInstance(t)
	colID := mustCollectionID(t, inst)

	t.Run("写满声明数量后继续Save应报错", func(t *testing.T) {
		txn, err := inst.BeginTxn(true)
		require.NoError(t, err)
		defer inst.AbortTxn(txn)

		ins, err := inst.Insert(txn, colID, 1)
		require.NoError(t, err)

		ins.WriteID(1)
		ins.WriteLong(1)
		ins.WriteLong(2)
		require.NoError(t, ins.Save())

		ins.WriteID(2)
		assert.ErrorIs(t, ins.Save(), port.ErrInsertExhausted)
	})

	t.Run("属性写越界的错误在Save时上抛", func(t *testing.T) {
		txn, err := inst.BeginTxn(true)
		require.NoError(t, err)
		defer inst.AbortTxn(txn)

		ins, err := inst.Insert(txn, colID, 1)
		require.NoError(t, err)

		ins.WriteID(1)
		ins.WriteLong(1)
		ins.WriteLong(2)
		ins.WriteLong(3) // 集合只有两个属性
		err = ins.Save()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "越界")
	})

	t.Run("未写id的文档不能落库", func(t *testing.T) {
		txn, err := inst.BeginTxn(true)
		require.NoError(t, err)
		defer inst.AbortTxn(txn)

		ins, err := inst.Insert(txn, colID, 1)
		require.NoError(t, err)
		err = ins.Save()
		require.Error(t, err)
	})

	t.Run("同id重复插入应覆盖旧文档", func(t *testing.T) {
		txn, err := inst.BeginTxn(true)
		require.NoError(t, err)

		ins, err := inst.Insert(txn, colID, 2)
		require.NoError(t, err)
		ins.WriteID(7)
		ins.WriteLong(1)
		require.NoError(t, ins.Save())
		ins.WriteID(7)
		ins.WriteLong(2)
		require.NoError(t, ins.Save())
		require.NoError(t, inst.CommitTxn(txn))

		builder, err := inst.Query(colID)
		require.NoError(t, err)
		query := builder.Build()

		readTxn, err := inst.BeginTxn(false)
		require.NoError(t, err)
		defer inst.AbortTxn(readTxn)

		cursor, err := query.Cursor(readTxn)
		require.NoError(t, err)
		defer cursor.Close()

		require.True(t, cursor.Next())
		r := cursor.Reader()
		assert.Equal(t, int64(7), r.ReadID())
		assert.Equal(t, int64(2), r.ReadLong(0))
		assert.True(t, r.IsNull(1), "未写出的尾部属性应落为NULL")
		assert.False(t, cursor.Next())
	})
}
