// Package domain file: internal/core/domain/schema_models.go
package domain

import (
	"encoding/json"
	"fmt"
)

// DataType 定义了属性的声明类型。
type DataType string

const (
	TypeBool   DataType = "Bool"
	TypeByte   DataType = "Byte"
	TypeInt    DataType = "Int"
	TypeLong   DataType = "Long"
	TypeFloat  DataType = "Float"
	TypeDouble DataType = "Double"
	TypeString DataType = "String"
	TypeJson   DataType = "Json"
)

// Valid 判断 DataType 是否为已知类型。
func (t DataType) Valid() bool {
	switch t {
	case TypeBool, TypeByte, TypeInt, TypeLong, TypeFloat, TypeDouble, TypeString, TypeJson:
		return true
	}
	return false
}

// PropertySchema 定义了集合中单个属性的声明。
// Name 为指针类型：没有名字的属性（例如隐式 backlink）在 schema 中
// 出于结构原因存在，但不可独立寻址，构建运行时描述符时会被过滤。
type PropertySchema struct {
	Name   *string  `json:"name"`
	Type   DataType `json:"type" validate:"required"`
	Target *string  `json:"target,omitempty"`
}

// IndexSchema 定义了集合上的单个索引。
type IndexSchema struct {
	Name       string   `json:"name" validate:"required"`
	Properties []string `json:"properties" validate:"required,min=1"`
	Unique     bool     `json:"unique"`
}

// CollectionSchema 定义了单个文档类型的声明。
type CollectionSchema struct {
	Name       string           `json:"name" validate:"required"`
	Properties []PropertySchema `json:"properties"`
	Indexes    []IndexSchema    `json:"indexes,omitempty"`
	Embedded   bool             `json:"embedded"`
}

// Schema 是一次 open 调用所提交的完整声明。
type Schema struct {
	Collections []CollectionSchema `json:"collections" validate:"required,min=1"`
}

// SchemaFromJSON 从 JSON 字节反序列化出 Schema。
func SchemaFromJSON(data []byte) (Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return Schema{}, fmt.Errorf("解析 schema JSON 失败: %w", err)
	}
	return s, nil
}
