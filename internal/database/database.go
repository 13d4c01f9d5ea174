package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"discovarr/internal/config"
	"discovarr/internal/database/migration"
	"discovarr/internal/database/migrations"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	// 导入SQLite驱动
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Options 数据库初始化选项
type Options struct {
	// PureGoSQLite 使用纯Go SQLite驱动（用于测试，无需CGO）
	PureGoSQLite bool

	// BeforeMigrate 在有待执行迁移时、执行第一个迁移前调用
	// 用于备份等预处理；返回错误会中止迁移
	BeforeMigrate func(ctx context.Context, pending []migration.Entry) error

	// Logger 迁移日志输出，nil时使用默认的[MIGRATION]前缀
	Logger *log.Logger
}

// Initialize 初始化数据库连接并执行待执行的迁移
func Initialize(cfg config.DatabaseConfig, opts Options) (*gorm.DB, error) {
	db, err := Open(cfg, opts)
	if err != nil {
		return nil, err
	}

	// 执行数据库迁移
	if err := runMigrations(db, opts); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Println("Database initialized successfully")
	return db, nil
}

// Open 打开数据库连接但不执行迁移
// 供migrate命令等需要先检查版本再操作的场景使用
func Open(cfg config.DatabaseConfig, opts Options) (*gorm.DB, error) {
	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			LogLevel: logger.Warn,
			Colorful: true,
		},
	)

	// 打开数据库连接
	db, err := open(cfg, opts.PureGoSQLite, gormLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// 优化连接池参数
	if err := optimizeConnectionPool(sqlDB); err != nil {
		return nil, fmt.Errorf("failed to optimize connection pool: %w", err)
	}

	// 应用SQLite性能优化
	if cfg.Driver != "postgres" {
		if err := applySQLiteOptimizations(db); err != nil {
			return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
		}
	}

	return db, nil
}

// open 按配置选择数据库驱动并打开连接
func open(cfg config.DatabaseConfig, pureGo bool, gormLogger logger.Interface) (*gorm.DB, error) {
	gormConfig := &gorm.Config{Logger: gormLogger}

	if cfg.Driver == "postgres" {
		return gorm.Open(postgres.Open(cfg.PostgresDSN()), gormConfig)
	}

	// 确保SQLite数据库目录存在
	if cfg.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	if pureGo {
		// 纯Go SQLite驱动
		return gorm.Open(sqlite.Dialector{
			DriverName: "sqlite",
			DSN:        cfg.Path,
		}, gormConfig)
	}

	// 标准CGO SQLite驱动
	return gorm.Open(sqlite.Open(cfg.Path), gormConfig)
}

// runMigrations 执行数据库迁移
// 迁移与版本记录在同一事务中提交，中断后重启不会重复执行
func runMigrations(db *gorm.DB, opts Options) error {
	runner := migration.NewRunner(db, migrations.All(), opts.Logger)
	if opts.BeforeMigrate != nil {
		runner.OnBeforeApply(opts.BeforeMigrate)
	}

	result, err := runner.Run(context.Background())
	if err != nil {
		return err
	}

	if len(result.Applied) > 0 {
		log.Printf("Database migration completed: %d applied, now at version %d",
			len(result.Applied), result.FinalVersion)
	}
	return nil
}

// optimizeConnectionPool 优化连接池配置
func optimizeConnectionPool(sqlDB *sql.DB) error {
	// SQLite在WAL模式下支持并发读取，但写入仍然是串行的
	// 适度增加连接数以支持并发读取
	sqlDB.SetMaxOpenConns(5)                   // 允许最多5个并发连接
	sqlDB.SetMaxIdleConns(2)                   // 保持2个空闲连接
	sqlDB.SetConnMaxLifetime(time.Hour)        // 连接最大生命周期1小时
	sqlDB.SetConnMaxIdleTime(15 * time.Minute) // 空闲连接最大时间15分钟

	return nil
}

// applySQLiteOptimizations 应用SQLite性能优化
func applySQLiteOptimizations(db *gorm.DB) error {
	optimizations := []string{
		// 启用WAL模式以提高并发性能
		"PRAGMA journal_mode = WAL",

		// 设置同步模式为NORMAL，平衡性能和安全性
		"PRAGMA synchronous = NORMAL",

		// 增加缓存大小到64MB
		"PRAGMA cache_size = -65536",

		// 设置临时存储为内存
		"PRAGMA temp_store = MEMORY",

		// 启用内存映射I/O，提高读取性能
		"PRAGMA mmap_size = 268435456", // 256MB

		// 优化页面大小
		"PRAGMA page_size = 4096",

		// 启用查询优化器
		"PRAGMA optimize",

		// 设置WAL自动检查点
		"PRAGMA wal_autocheckpoint = 1000",
	}

	for _, pragma := range optimizations {
		if err := db.Exec(pragma).Error; err != nil {
			log.Printf("Warning: failed to execute %s: %v", pragma, err)
			// 优化失败不应该阻止启动
		}
	}

	return nil
}

// BatchTransaction 批量事务处理
func BatchTransaction(db *gorm.DB, batchSize int, fn func(*gorm.DB, int) error) error {
	return db.Transaction(func(tx *gorm.DB) error {
		return fn(tx, batchSize)
	})
}

// Close 关闭数据库连接
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
