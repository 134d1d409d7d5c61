// file: internal/core/schema/fingerprint_test.go
package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luiz158/isar/internal/core/domain"
)

func TestFingerprint(t *testing.T) {
	t.Run("相同schema的指纹是确定的", func(t *testing.T) {
		a := validSchema()
		b := validSchema()
		assert.Equal(t, Fingerprint(&a), Fingerprint(&b))
	})

	t.Run("属性变化应改变指纹", func(t *testing.T) {
		a := validSchema()
		b := validSchema()
		b.Collections[0].Properties[1].Type = domain.TypeLong
		assert.NotEqual(t, Fingerprint(&a), Fingerprint(&b))
	})

	t.Run("属性顺序变化应改变指纹", func(t *testing.T) {
		a := validSchema()
		b := validSchema()
		b.Collections[0].Properties[0], b.Collections[0].Properties[1] =
			b.Collections[0].Properties[1], b.Collections[0].Properties[0]
		assert.NotEqual(t, Fingerprint(&a), Fingerprint(&b))
	})

	t.Run("指纹非零", func(t *testing.T) {
		s := validSchema()
		require.NotZero(t, Fingerprint(&s))
	})
}

func TestNameHash(t *testing.T) {
	t.Run("同名得到相同散列", func(t *testing.T) {
		assert.Equal(t, NameHash("users"), NameHash("users"))
	})

	t.Run("不同名称的散列不同", func(t *testing.T) {
		assert.NotEqual(t, NameHash("users"), NameHash("posts"))
	})

	t.Run("集合id就是名称散列", func(t *testing.T) {
		assert.Equal(t, NameHash("users"), CollectionID("users"))
	})
}
