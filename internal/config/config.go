package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 应用配置结构
// 只承载进程级的基础设施配置；提供商的地址、密钥等业务设置
// 存放在settings表里，由SettingsService管理并支持环境变量覆盖
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Sync     SyncConfig     `json:"sync"`
	Cache    CacheConfig    `json:"cache"`
	CORS     CORSConfig     `json:"cors"`
	Logging  LoggingConfig  `json:"logging"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `json:"host"`
	Port string `json:"port"`
	Env  string `json:"env"`
}

// DatabaseConfig 数据库配置
// Driver为sqlite时只用Path；为postgres时使用Host等连接参数
type DatabaseConfig struct {
	Driver              string `json:"driver"`
	Path                string `json:"path"`
	Host                string `json:"host"`
	Port                int    `json:"port"`
	User                string `json:"user"`
	Password            string `json:"-"`
	Name                string `json:"name"`
	SSLMode             string `json:"ssl_mode"`
	BackupDir           string `json:"backup_dir"`
	BackupMaxCount      int    `json:"backup_max_count"`
	BackupIntervalHours int    `json:"backup_interval_hours"`
}

// PostgresDSN 拼接postgres连接串
func (d DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// SyncConfig 后台同步配置
// 同步周期由schedules表驱动，这里只配置调度器的检查间隔
type SyncConfig struct {
	SchedulerTick time.Duration `json:"scheduler_tick"`
}

// CacheConfig 本地缓存配置
type CacheConfig struct {
	ImageDir string `json:"image_dir"`
}

// CORSConfig CORS配置
type CORSConfig struct {
	Origins []string `json:"origins"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Load 加载配置
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("HOST", "0.0.0.0"),
			Port: getEnv("PORT", "8000"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Driver:              getEnv("DATABASE", "sqlite"),
			Path:                getEnv("DB_PATH", "./config/discovarr.db"),
			Host:                getEnv("POSTGRES_HOST", "localhost"),
			Port:                parseInt(getEnv("POSTGRES_PORT", "5432"), 5432),
			User:                getEnv("POSTGRES_USER", "discovarr"),
			Password:            getEnv("POSTGRES_PASSWORD", ""),
			Name:                getEnv("POSTGRES_DB", "discovarr"),
			SSLMode:             getEnv("POSTGRES_SSLMODE", "disable"),
			BackupDir:           getEnv("DB_BACKUP_DIR", "./config/backups"),
			BackupMaxCount:      parseInt(getEnv("DB_BACKUP_MAX_COUNT", "7"), 7),
			BackupIntervalHours: parseInt(getEnv("DB_BACKUP_INTERVAL_HOURS", "24"), 24),
		},
		Sync: SyncConfig{
			SchedulerTick: parseDuration(getEnv("SCHEDULER_TICK_INTERVAL", "1m"), time.Minute),
		},
		Cache: CacheConfig{
			ImageDir: getEnv("IMAGE_CACHE_DIR", "./config/cache/images"),
		},
		CORS: CORSConfig{
			Origins: parseStringSlice(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8000")),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

// IsDevelopment 判断是否运行在开发模式
func IsDevelopment() bool {
	return getEnv("ENV", "development") == "development"
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration 解析时间间隔
func parseDuration(s string, defaultValue time.Duration) time.Duration {
	duration, err := time.ParseDuration(s)
	if err != nil {
		return defaultValue
	}
	return duration
}

// parseStringSlice 解析逗号分隔的字符串切片
func parseStringSlice(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseInt 解析整数
func parseInt(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
