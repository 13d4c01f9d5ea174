package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"discovarr/internal/database/migration"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// BackupService 备份服务接口
type BackupService interface {
	// 创建备份
	CreateBackup(ctx context.Context) (*BackupInfo, error)

	// 列出所有备份
	ListBackups(ctx context.Context) ([]*BackupInfo, error)

	// 恢复备份
	RestoreBackup(ctx context.Context, backupPath string) error

	// 删除备份
	DeleteBackup(ctx context.Context, backupPath string) error

	// 清理过期备份
	CleanupOldBackups(ctx context.Context) error

	// 验证备份文件
	ValidateBackup(ctx context.Context, backupPath string) error

	// 迁移前备份钩子，只在有待执行迁移时被调用
	MigrationHook() func(ctx context.Context, pending []migration.Entry) error

	// 启动自动备份
	StartAutoBackup(ctx context.Context) error

	// 停止自动备份
	StopAutoBackup()
}

// BackupInfo 备份信息
type BackupInfo struct {
	Path      string    `json:"path"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	IsValid   bool      `json:"is_valid"`
}

// BackupServiceImpl 备份服务实现
// 操作数据库文件路径而不持有业务连接，因此可以在迁移执行前工作
type BackupServiceImpl struct {
	dbPath        string
	backupDir     string
	maxBackups    int
	intervalHours int
	stopChan      chan struct{}
}

// NewBackupService 创建备份服务
func NewBackupService(dbPath, backupDir string, maxBackups, intervalHours int) BackupService {
	// 设置默认值
	if maxBackups <= 0 {
		maxBackups = 7
	}
	if intervalHours <= 0 {
		intervalHours = 24
	}

	return &BackupServiceImpl{
		dbPath:        dbPath,
		backupDir:     backupDir,
		maxBackups:    maxBackups,
		intervalHours: intervalHours,
		stopChan:      make(chan struct{}),
	}
}

// openBackupDB 打开独立的备份连接，不走业务连接池
func openBackupDB(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{})
}

// CreateBackup 创建备份
// 使用SQLite的VACUUM INTO命令，在独立连接上执行，不影响业务连接池
func (s *BackupServiceImpl) CreateBackup(ctx context.Context) (*BackupInfo, error) {
	if _, err := os.Stat(s.dbPath); err != nil {
		return nil, fmt.Errorf("database file not found: %w", err)
	}

	// 确保备份目录存在
	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	// 生成备份文件名
	timestamp := time.Now().Format("20060102_150405")
	backupFilename := fmt.Sprintf("discovarr_backup_%s.db", timestamp)
	backupPath := filepath.Join(s.backupDir, backupFilename)

	log.Printf("Creating backup: %s", backupPath)

	db, err := openBackupDB(s.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database for backup: %w", err)
	}
	defer closeGorm(db)

	if err := db.WithContext(ctx).Exec(fmt.Sprintf("VACUUM INTO '%s'", backupPath)).Error; err != nil {
		return nil, fmt.Errorf("failed to create backup: %w", err)
	}

	// 获取备份文件信息
	fileInfo, err := os.Stat(backupPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get backup file info: %w", err)
	}

	backupInfo := &BackupInfo{
		Path:      backupPath,
		Filename:  backupFilename,
		Size:      fileInfo.Size(),
		CreatedAt: fileInfo.ModTime(),
		IsValid:   true,
	}

	// 验证备份文件
	if err := s.ValidateBackup(ctx, backupPath); err != nil {
		log.Printf("Warning: backup validation failed: %v", err)
		backupInfo.IsValid = false
	}

	log.Printf("Backup created successfully: %s (size: %d bytes)", backupPath, fileInfo.Size())
	return backupInfo, nil
}

// ListBackups 列出所有备份
func (s *BackupServiceImpl) ListBackups(ctx context.Context) ([]*BackupInfo, error) {
	// 备份目录不存在视为无备份
	if _, err := os.Stat(s.backupDir); os.IsNotExist(err) {
		return []*BackupInfo{}, nil
	}

	files, err := os.ReadDir(s.backupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []*BackupInfo
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".db") {
			continue
		}

		filePath := filepath.Join(s.backupDir, file.Name())
		fileInfo, err := file.Info()
		if err != nil {
			log.Printf("Warning: failed to get file info for %s: %v", file.Name(), err)
			continue
		}

		backups = append(backups, &BackupInfo{
			Path:      filePath,
			Filename:  file.Name(),
			Size:      fileInfo.Size(),
			CreatedAt: fileInfo.ModTime(),
			IsValid:   true,
		})
	}

	// 按创建时间排序（最新的在前）
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})

	return backups, nil
}

// RestoreBackup 恢复备份
// 调用方需保证没有打开的业务连接，恢复后重新初始化数据库
func (s *BackupServiceImpl) RestoreBackup(ctx context.Context, backupPath string) error {
	if err := s.ValidateBackup(ctx, backupPath); err != nil {
		return fmt.Errorf("backup validation failed: %w", err)
	}

	log.Printf("Restoring backup from: %s", backupPath)

	// 先保留当前数据库文件以便恢复失败时回退
	currentBackupPath := s.dbPath + ".restore_backup"
	if err := copyFile(s.dbPath, currentBackupPath); err != nil {
		log.Printf("Warning: failed to backup current database: %v", err)
	}

	if err := copyFile(backupPath, s.dbPath); err != nil {
		if restoreErr := copyFile(currentBackupPath, s.dbPath); restoreErr != nil {
			log.Printf("Critical: failed to restore original database: %v", restoreErr)
		}
		return fmt.Errorf("failed to restore backup: %w", err)
	}

	os.Remove(currentBackupPath)

	log.Printf("Backup restored successfully from: %s", backupPath)
	return nil
}

// DeleteBackup 删除备份
func (s *BackupServiceImpl) DeleteBackup(ctx context.Context, backupPath string) error {
	// 验证路径在备份目录内
	cleanPath := filepath.Clean(backupPath)
	if !strings.HasPrefix(cleanPath, filepath.Clean(s.backupDir)+string(os.PathSeparator)) {
		return fmt.Errorf("backup path is not in backup directory")
	}

	if err := os.Remove(cleanPath); err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}

	log.Printf("Backup deleted: %s", cleanPath)
	return nil
}

// CleanupOldBackups 清理过期备份
func (s *BackupServiceImpl) CleanupOldBackups(ctx context.Context) error {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	// 备份数量超过限制时删除最旧的
	if len(backups) > s.maxBackups {
		toDelete := backups[s.maxBackups:]
		for _, backup := range toDelete {
			if err := s.DeleteBackup(ctx, backup.Path); err != nil {
				log.Printf("Warning: failed to delete old backup %s: %v", backup.Path, err)
			}
		}
		log.Printf("Cleaned up %d old backups", len(toDelete))
	}

	return nil
}

// ValidateBackup 验证备份文件
func (s *BackupServiceImpl) ValidateBackup(ctx context.Context, backupPath string) error {
	if _, err := os.Stat(backupPath); err != nil {
		return fmt.Errorf("backup file not found: %w", err)
	}

	testDB, err := openBackupDB(backupPath)
	if err != nil {
		return fmt.Errorf("failed to open backup database: %w", err)
	}
	defer closeGorm(testDB)

	// 执行完整性检查验证备份可用
	if err := testDB.WithContext(ctx).Exec("PRAGMA integrity_check").Error; err != nil {
		return fmt.Errorf("backup integrity check failed: %w", err)
	}

	return nil
}

// MigrationHook 返回迁移执行器的前置钩子
// 钩子创建备份并清理过期备份；数据库文件尚不存在（首次启动）时跳过
func (s *BackupServiceImpl) MigrationHook() func(ctx context.Context, pending []migration.Entry) error {
	return func(ctx context.Context, pending []migration.Entry) error {
		if _, err := os.Stat(s.dbPath); os.IsNotExist(err) {
			log.Println("Database file does not exist yet, skipping pre-migration backup")
			return nil
		}

		log.Printf("Backing up database before applying %d pending migrations", len(pending))
		if _, err := s.CreateBackup(ctx); err != nil {
			return fmt.Errorf("pre-migration backup failed: %w", err)
		}

		if err := s.CleanupOldBackups(ctx); err != nil {
			log.Printf("Warning: failed to cleanup old backups: %v", err)
		}
		return nil
	}
}

// StartAutoBackup 启动自动备份
func (s *BackupServiceImpl) StartAutoBackup(ctx context.Context) error {
	log.Printf("Starting automatic backup service (interval: %d hours, max backups: %d)...", s.intervalHours, s.maxBackups)

	go func() {
		interval := time.Duration(s.intervalHours) * time.Hour
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				log.Println("Running scheduled backup...")
				if _, err := s.CreateBackup(ctx); err != nil {
					log.Printf("Scheduled backup failed: %v", err)
				} else if err := s.CleanupOldBackups(ctx); err != nil {
					log.Printf("Failed to cleanup old backups: %v", err)
				}
			case <-s.stopChan:
				log.Println("Stopping automatic backup service...")
				return
			case <-ctx.Done():
				log.Println("Context cancelled, stopping automatic backup service...")
				return
			}
		}
	}()

	return nil
}

// StopAutoBackup 停止自动备份
func (s *BackupServiceImpl) StopAutoBackup() {
	close(s.stopChan)
}

// closeGorm 关闭gorm连接底层的sql.DB
func closeGorm(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

// copyFile 复制文件
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	_, err = io.Copy(destFile, sourceFile)
	return err
}
