package migration

import (
	"fmt"
)

// SchemaError 单个结构变更原语失败
// 携带出错的表、列以及底层原因（列已存在、列不存在、类型转换失败、约束冲突等）
type SchemaError struct {
	Op     string // 失败的原语，如 "add_column"
	Table  string
	Column string
	Cause  error
}

// Error 实现error接口
func (e *SchemaError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema %s failed on %s.%s: %v", e.Op, e.Table, e.Column, e.Cause)
	}
	return fmt.Sprintf("schema %s failed on %s: %v", e.Op, e.Table, e.Cause)
}

// Unwrap 实现errors.Unwrap接口
func (e *SchemaError) Unwrap() error {
	return e.Cause
}

// MigrationError 某个迁移单元的upgrade/downgrade失败
// 包装原始错误并附带单元的版本号与名称，Runner收到后停止推进
type MigrationError struct {
	Version   int
	Name      string
	Direction string // "upgrade" 或 "downgrade"
	Cause     error
}

// Error 实现error接口
func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %s (version %d) %s failed: %v", e.Name, e.Version, e.Direction, e.Cause)
}

// Unwrap 实现errors.Unwrap接口
func (e *MigrationError) Unwrap() error {
	return e.Cause
}

// DiscoveryError 启动时的致命错误：版本号重复或无法从单元名解析版本号
// 属于部署缺陷，不会重试
type DiscoveryError struct {
	Name   string
	Reason string
}

// Error 实现error接口
func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("migration discovery failed for %q: %s", e.Name, e.Reason)
}

// StorageError 版本存储读写失败，启动过程视为致命错误
type StorageError struct {
	Op    string // "read" 或 "write"
	Cause error
}

// Error 实现error接口
func (e *StorageError) Error() string {
	return fmt.Sprintf("schema version %s failed: %v", e.Op, e.Cause)
}

// Unwrap 实现errors.Unwrap接口
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// ValidationError 迁移单元静态校验失败：
// downgrade引用了对应upgrade从未触碰的表或列（典型的复制粘贴缺陷）
type ValidationError struct {
	Version int
	Name    string
	Op      string
	Table   string
	Column  string
}

// Error 实现error接口
func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("migration %s (version %d): downgrade %s references column %s.%s not touched by upgrade",
			e.Name, e.Version, e.Op, e.Table, e.Column)
	}
	return fmt.Sprintf("migration %s (version %d): downgrade %s references table %s not touched by upgrade",
		e.Name, e.Version, e.Op, e.Table)
}
