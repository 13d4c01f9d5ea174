package main

import (
	"context"
	"log"

	"discovarr/internal/config"
	"discovarr/internal/database"
	"discovarr/internal/handlers"
	"discovarr/internal/middleware"
	"discovarr/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// 加载环境变量 - 优先加载.env.local，然后是.env
	if err := godotenv.Load(".env.local"); err != nil {
		// 如果.env.local不存在，尝试加载.env
		if err := godotenv.Load(".env"); err != nil {
			log.Println("Warning: No .env file found, using system environment variables")
		} else {
			log.Println("Loaded configuration from .env file")
		}
	} else {
		log.Println("Loaded configuration from .env.local file")
	}

	// 初始化配置
	cfg := config.Load()

	// 备份服务在数据库初始化前创建，迁移钩子需要在第一个迁移执行前做备份
	backup := services.NewBackupService(
		cfg.Database.Path,
		cfg.Database.BackupDir,
		cfg.Database.BackupMaxCount,
		cfg.Database.BackupIntervalHours,
	)

	// 初始化数据库；备份基于SQLite文件，postgres下不挂迁移钩子
	dbOpts := database.Options{}
	if cfg.Database.Driver != "postgres" {
		dbOpts.BeforeMigrate = backup.MigrationHook()
	}
	db, err := database.Initialize(cfg.Database, dbOpts)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// 设置Gin模式
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由器
	router := gin.New()

	// 添加中间件
	router.Use(gin.Logger())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.CORS(cfg.CORS.Origins))

	// 初始化处理器
	h, err := handlers.New(db, cfg, backup)
	if err != nil {
		log.Fatalf("Failed to initialize handlers: %v", err)
	}

	// 写入设置、默认搜索与调度任务的默认行
	if err := h.Initialize(context.Background()); err != nil {
		log.Fatalf("Failed to seed database defaults: %v", err)
	}

	// 启动调度器
	if err := h.StartScheduler(context.Background()); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// 启动自动备份服务
	if cfg.Database.Driver != "postgres" {
		if err := h.StartBackupService(context.Background()); err != nil {
			log.Printf("Warning: Failed to start backup service: %v", err)
		}
	}

	// 设置路由
	setupRoutes(router, h)

	// 启动服务器
	addr := cfg.Server.Host + ":" + cfg.Server.Port
	log.Printf("Discovarr server starting on %s", addr)

	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func setupRoutes(router *gin.Engine, h *handlers.Handler) {
	// 健康检查
	router.GET("/health", h.HealthCheck)

	// 海报缓存静态目录
	router.Static("/cache/images", h.ImageCacheDir())

	// API路由组
	api := router.Group("/api/v1")
	{
		// 媒体建议管理
		media := api.Group("/media")
		{
			media.GET("/active", h.GetActiveMedia)
			media.GET("/ignored", h.GetIgnoredMedia)
			media.GET("/search", h.SearchMedia)
			media.GET("/field-values/:col_name", h.GetMediaFieldValues)
			media.POST("/:id/toggle-ignore", h.ToggleMediaIgnore)
			media.PUT("/:id/ignore", h.SetMediaIgnore)
			media.DELETE("/:id", h.DeleteMedia)
		}

		// 观看历史
		history := api.Group("/watch-history")
		{
			history.GET("", h.GetWatchHistory)
			history.GET("/grouped", h.GetWatchHistoryGrouped)
			history.POST("/import", h.ImportWatchHistory)
			history.DELETE("/:id", h.DeleteWatchHistory)
			history.DELETE("", h.DeleteAllWatchHistory)
		}

		// 媒体库与大模型提供商
		providers := api.Group("/providers")
		{
			providers.GET("/users", h.GetUsers)
			providers.POST("/sync", h.SyncWatchHistory)
			providers.POST("/process-watch-history", h.ProcessWatchHistory)
			providers.POST("/trakt/authenticate", h.TraktAuthenticate)
			providers.GET("/llm/models", h.GetLLMModels)
		}

		// 推荐生成
		similar := api.Group("/similar")
		{
			similar.GET("/:media_name", h.SimilarMediaByName)
			similar.POST("/search/:search_id", h.SimilarMediaBySearch)
			similar.POST("/custom", h.SimilarMediaCustom)
		}

		// 搜索模板与调度
		searches := api.Group("/searches")
		{
			searches.GET("", h.GetSearches)
			searches.POST("", h.CreateSearch)
			searches.GET("/:search_id", h.GetSearch)
			searches.PUT("/:search_id", h.UpdateSearch)
			searches.DELETE("/:search_id", h.DeleteSearch)
			searches.GET("/:search_id/schedule", h.GetSearchSchedule)
			searches.PUT("/:search_id/schedule", h.UpsertSearchSchedule)
			searches.DELETE("/:search_id/schedule", h.DeleteSearchSchedule)
		}

		// 提示词预览与token用量统计
		api.POST("/prompt/preview", h.PreviewPrompt)
		api.GET("/token-stats", h.GetTokenStats)
		api.GET("/token-stats/summary", h.GetTokenStatsSummary)

		// 手动触发调度任务
		api.POST("/jobs/:job_id/trigger", h.TriggerJob)

		// 设置
		settings := api.Group("/settings")
		{
			settings.GET("", h.GetAllSettings)
			settings.GET("/:group", h.GetSettingsGroup)
			settings.PUT("/:group/:name", h.UpdateSetting)
		}

		// 备份管理
		backups := api.Group("/backups")
		{
			backups.GET("", h.ListBackups)
			backups.POST("", h.CreateBackup)
			backups.POST("/restore", h.RestoreBackup)
			backups.POST("/validate", h.ValidateBackup)
			backups.POST("/cleanup", h.CleanupOldBackups)
			backups.DELETE("", h.DeleteBackup)
		}
	}
}
