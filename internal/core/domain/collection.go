// Package domain file: internal/core/domain/collection.go
package domain

// Property 是单个可寻址属性的运行时描述符。
// TargetID 为链接属性指向的目标集合 id，0 表示非链接属性。
type Property struct {
	Name     string
	Type     DataType
	TargetID uint64
}

// Collection 是单个文档类型的运行时描述符。
// Properties 的顺序与 schema 声明顺序严格一致（过滤无名属性之后），
// 读写器的按位访问依赖这一顺序，构建后不得再修改。
type Collection struct {
	Name       string
	Properties []Property
}

// PropertyIndex 按名称查找属性的位置，未找到返回 -1。
func (c *Collection) PropertyIndex(name string) int {
	for i, p := range c.Properties {
		if p.Name == name {
			return i
		}
	}
	return -1
}
