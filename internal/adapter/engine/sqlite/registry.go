// Package sqlite file: internal/adapter/engine/sqlite/registry.go
package sqlite

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/luiz158/isar/internal/core/domain"
	"github.com/luiz158/isar/internal/core/port"
	"github.com/luiz158/isar/internal/core/schema"
	"github.com/luiz158/isar/internal/isarobserve"
)

// 断言 *Registry 实现 port.Engine 接口，编译期校验
var _ port.Engine = (*Registry)(nil)

// Registry 把名称映射到唯一的活实例。
// 查找远多于插入：读锁保护的 map 允许并发查找，首次构建通过
// singleflight 收敛 —— 无论多少调用方同时抢开同一个名字，
// 构建（含文件系统访问和迁移）只会执行一次，其余调用方共享结果。
//
// Registry 是显式对象而非隐藏单例：测试可以为每个用例建一个
// 全新的注册表，互不串扰。包级 Open 走进程默认注册表。
type Registry struct {
	mu        sync.RWMutex
	instances map[uint64]*Instance

	group singleflight.Group
}

// NewRegistry 创建一个空的实例注册表。
func NewRegistry() *Registry {
	return &Registry{instances: make(map[uint64]*Instance)}
}

// defaultRegistry 是进程级默认注册表。
var defaultRegistry = NewRegistry()

// Open 在进程默认注册表上打开实例。
func Open(name, dir string, s domain.Schema) (*Instance, error) {
	return defaultRegistry.OpenOrGet(name, dir, s)
}

// Default 返回进程默认注册表。
func Default() *Registry { return defaultRegistry }

// Type 实现 port.Engine.Type，返回后端类型标识符。
func (r *Registry) Type() string {
	return "sqlite_builtin"
}

// Open 实现 port.Engine.Open。
func (r *Registry) Open(name, dir string, s domain.Schema) (port.Instance, error) {
	return r.OpenOrGet(name, dir, s)
}

// OpenOrGet 返回名称对应的共享实例。
// 已存在的实例只做指纹比对：一致则直接复用（不触碰存储、不迁移），
// 不一致则返回 schema 失配错误且既有实例保持原样。
// 不存在时执行一次完整构建并发布到注册表。
func (r *Registry) OpenOrGet(name, dir string, s domain.Schema) (*Instance, error) {
	isarobserve.InstanceOpens.Inc()
	key := schema.NameHash(name)

	if inst := r.lookup(key); inst != nil {
		return r.checkFingerprint(inst, &s)
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		// 双重检查：排队期间可能已有人完成构建
		if inst := r.lookup(key); inst != nil {
			return inst, nil
		}
		inst, err := openInstance(name, dir, s)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.instances[key] = inst
		r.mu.Unlock()
		return inst, nil
	})
	if err != nil {
		return nil, err
	}
	return r.checkFingerprint(v.(*Instance), &s)
}

// Get 返回已打开的实例，不触发构建。
func (r *Registry) Get(name string) (*Instance, bool) {
	inst := r.lookup(schema.NameHash(name))
	return inst, inst != nil
}

// Names 返回当前所有已打开实例的名称。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.instances))
	for _, inst := range r.instances {
		names = append(names, inst.name)
	}
	return names
}

func (r *Registry) lookup(key uint64) *Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instances[key]
}

// checkFingerprint 校验调用方提交的 schema 与活实例的指纹是否一致。
func (r *Registry) checkFingerprint(inst *Instance, s *domain.Schema) (*Instance, error) {
	fingerprint := schema.Fingerprint(s)
	if fingerprint != inst.fingerprint {
		return nil, fmt.Errorf("实例 '%s' 已以指纹 %016x 打开，本次请求的指纹为 %016x: %w",
			inst.name, inst.fingerprint, fingerprint, port.ErrSchemaMismatch)
	}
	return inst, nil
}
