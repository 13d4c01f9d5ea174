package migration

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// 版本记录固定使用的主键
const versionRowID = 1

// SchemaVersion 单行的当前结构版本记录
// 首次启动时以0创建，只由Runner在单元成功后更新，永不删除
type SchemaVersion struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	CurrentVersion int       `gorm:"not null" json:"current_version"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName 指定表名
func (SchemaVersion) TableName() string {
	return "schema_version"
}

// VersionStore 当前结构版本的持久化读写
// 不支持并发写入：迁移期间Runner是唯一写入者，
// 互斥由部署方式保证（同一数据库同时只有一个进程执行启动迁移）。
type VersionStore interface {
	// Ensure 保证版本表与初始记录存在，只在启动时调用一次
	Ensure(ctx context.Context) error
	// Read 读取当前版本，记录不存在时返回0
	Read(ctx context.Context) (int, error)
	// Write 写入新版本，db可以是事务句柄，
	// Runner将版本提交与单元的结构变更放在同一事务里
	Write(db *gorm.DB, version int) error
}

// gormVersionStore 基于GORM的版本存储实现
type gormVersionStore struct {
	db *gorm.DB
}

// NewVersionStore 创建版本存储
func NewVersionStore(db *gorm.DB) VersionStore {
	return &gormVersionStore{db: db}
}

// Ensure 建表并写入初始记录
func (s *gormVersionStore) Ensure(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if db.Migrator().HasTable(&SchemaVersion{}) {
		return nil
	}
	if err := db.Migrator().CreateTable(&SchemaVersion{}); err != nil {
		return &StorageError{Op: "write", Cause: err}
	}
	if err := db.Create(&SchemaVersion{ID: versionRowID, CurrentVersion: 0}).Error; err != nil {
		return &StorageError{Op: "write", Cause: err}
	}
	return nil
}

// Read 读取当前版本
func (s *gormVersionStore) Read(ctx context.Context) (int, error) {
	var rec SchemaVersion
	err := s.db.WithContext(ctx).First(&rec, versionRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, &StorageError{Op: "read", Cause: err}
	}
	return rec.CurrentVersion, nil
}

// Write 更新版本记录
func (s *gormVersionStore) Write(db *gorm.DB, version int) error {
	res := db.Model(&SchemaVersion{}).Where("id = ?", versionRowID).
		Update("current_version", version)
	if res.Error != nil {
		return &StorageError{Op: "write", Cause: res.Error}
	}
	if res.RowsAffected == 0 {
		if err := db.Create(&SchemaVersion{ID: versionRowID, CurrentVersion: version}).Error; err != nil {
			return &StorageError{Op: "write", Cause: err}
		}
	}
	return nil
}
