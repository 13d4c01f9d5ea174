package models

import (
	"time"
)

// BaseModel 基础模型，包含通用字段
// 本项目不使用软删除，媒体条目通过ignore标记隐藏
type BaseModel struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 接口，用于自定义表名
type TableNamer interface {
	TableName() string
}
