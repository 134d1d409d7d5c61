// Package schema file: internal/core/schema/fingerprint.go
package schema

import (
	"encoding/binary"
	"encoding/json"

	"golang.org/x/crypto/blake2b"

	"github.com/luiz158/isar/internal/core/domain"
)

// Fingerprint 计算 schema 的确定性 64 位指纹。
// 结构体字段顺序固定、集合与属性保持声明顺序，因此语义相同的 schema
// 编码结果必然一致。指纹同时用于实例注册表的去重与对外暴露 schema 身份。
func Fingerprint(s *domain.Schema) uint64 {
	encoded, err := json.Marshal(s)
	if err != nil {
		// Schema 全部由可序列化的基础类型组成，Marshal 不会失败
		panic(err)
	}
	return hash64(encoded)
}

// CollectionID 计算集合名称的稳定 id。
// 同名集合在任何进程中得到相同 id，作为 collections 映射的键。
func CollectionID(name string) uint64 {
	return NameHash(name)
}

// NameHash 计算任意名称的稳定 64 位散列，实例注册表以它为键。
func NameHash(name string) uint64 {
	return hash64([]byte(name))
}

func hash64(data []byte) uint64 {
	h, err := blake2b.New(8, nil)
	if err != nil {
		panic(err)
	}
	h.Write(data)
	return binary.BigEndian.Uint64(h.Sum(nil))
}
