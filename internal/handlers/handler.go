package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"discovarr/internal/cache"
	"discovarr/internal/config"
	"discovarr/internal/models"
	"discovarr/internal/providers"
	"discovarr/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler HTTP处理器
type Handler struct {
	db        *gorm.DB
	config    *config.Config
	settings  services.SettingsService
	gateway   *services.ProviderGateway
	history   services.HistoryService
	discovery services.DiscoveryService
	media     services.MediaService
	searches  services.SearchService
	scheduler services.SchedulerService
	backup    services.BackupService
	images    *cache.ImageCache
}

// New 创建处理器实例
// 备份服务在数据库初始化前就已创建，由调用方传入
func New(db *gorm.DB, cfg *config.Config, backup services.BackupService) (*Handler, error) {
	// 创建海报缓存
	images, err := cache.NewImageCache(cfg.Cache.ImageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize image cache: %w", err)
	}

	// 创建设置服务与提供商网关
	settings := services.NewSettingsService(db)
	factory := providers.NewFactory()
	gateway := services.NewProviderGateway(settings, factory)

	// 创建业务服务
	history := services.NewHistoryService(db, settings, gateway, images)
	discovery := services.NewDiscoveryService(db, settings, gateway, history, images)
	media := services.NewMediaService(db, images)
	searches := services.NewSearchService(db)
	scheduler := services.NewSchedulerService(db, cfg.Sync.SchedulerTick)

	// 注册调度任务
	scheduler.RegisterJob(services.JobSyncWatchHistory, func(ctx context.Context, _ *models.Schedule) error {
		_, err := history.SyncAll(ctx)
		return err
	})
	scheduler.RegisterJob(services.JobProcessWatchHistory, func(ctx context.Context, _ *models.Schedule) error {
		return discovery.ProcessWatchHistory(ctx)
	})
	scheduler.RegisterJob(services.JobSimilarMedia, func(ctx context.Context, schedule *models.Schedule) error {
		return runSearchJob(ctx, discovery, schedule)
	})

	return &Handler{
		db:        db,
		config:    cfg,
		settings:  settings,
		gateway:   gateway,
		history:   history,
		discovery: discovery,
		media:     media,
		searches:  searches,
		scheduler: scheduler,
		backup:    backup,
		images:    images,
	}, nil
}

// Initialize 初始化各服务的数据库默认行
func (h *Handler) Initialize(ctx context.Context) error {
	if err := h.settings.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize settings: %w", err)
	}
	if err := h.searches.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize searches: %w", err)
	}
	if err := h.scheduler.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize schedules: %w", err)
	}
	return nil
}

// StartScheduler 启动调度器
func (h *Handler) StartScheduler(ctx context.Context) error {
	return h.scheduler.Start(ctx)
}

// StartBackupService 启动自动备份
func (h *Handler) StartBackupService(ctx context.Context) error {
	return h.backup.StartAutoBackup(ctx)
}

// ImageCacheDir 海报缓存根目录，用于静态文件路由
func (h *Handler) ImageCacheDir() string {
	return h.images.BaseDir()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "Discovarr",
		"version": "1.0.0",
	})
}

// runSearchJob 执行保存的搜索调度，运行参数取自schedule行的kwargs
func runSearchJob(ctx context.Context, discovery services.DiscoveryService, schedule *models.Schedule) error {
	kwargs, err := schedule.GetKwargs()
	if err != nil {
		return fmt.Errorf("invalid kwargs for job %s: %w", schedule.JobID, err)
	}

	mediaName, _ := kwargs["media_name"].(string)
	customPrompt, _ := kwargs["custom_prompt"].(string)

	var searchID *uint
	if raw, ok := kwargs["search_id"].(float64); ok && raw > 0 {
		id := uint(raw)
		searchID = &id
	}

	_, err = discovery.SimilarMedia(ctx, mediaName, customPrompt, searchID)
	return err
}

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse 成功响应结构
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// respondWithError 返回错误响应
func (h *Handler) respondWithError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	})
}

// respondWithServiceError 按服务层错误类型选择状态码
func (h *Handler) respondWithServiceError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrNotFound) {
		h.respondWithError(c, http.StatusNotFound, err.Error())
		return
	}
	h.respondWithError(c, http.StatusInternalServerError, err.Error())
}

// respondWithSuccess 返回成功响应
func (h *Handler) respondWithSuccess(c *gin.Context, data interface{}, message ...string) {
	response := SuccessResponse{
		Success: true,
		Data:    data,
	}

	if len(message) > 0 {
		response.Message = message[0]
	}

	c.JSON(http.StatusOK, response)
}

// respondWithCreated 返回创建成功响应
func (h *Handler) respondWithCreated(c *gin.Context, data interface{}, message ...string) {
	response := SuccessResponse{
		Success: true,
		Data:    data,
	}

	if len(message) > 0 {
		response.Message = message[0]
	}

	c.JSON(http.StatusCreated, response)
}

// bindJSON 绑定JSON请求体
func (h *Handler) bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.respondWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// parseUintParam 解析uint路径参数
func (h *Handler) parseUintParam(c *gin.Context, paramName string) (uint, bool) {
	paramStr := c.Param(paramName)
	if paramStr == "" {
		h.respondWithError(c, http.StatusBadRequest, "Missing parameter: "+paramName)
		return 0, false
	}

	var paramValue uint
	if _, err := fmt.Sscanf(paramStr, "%d", &paramValue); err != nil {
		h.respondWithError(c, http.StatusBadRequest, "Invalid parameter: "+paramName)
		return 0, false
	}

	return paramValue, true
}

// parseTimeQuery 解析可选的时间查询参数
// 接受RFC3339和YYYY-MM-DD两种格式
func (h *Handler) parseTimeQuery(c *gin.Context, queryName string) (*time.Time, bool) {
	value := c.Query(queryName)
	if value == "" {
		return nil, true
	}

	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		parsed, err = time.Parse("2006-01-02", value)
		if err != nil {
			h.respondWithError(c, http.StatusBadRequest, "Invalid time parameter "+queryName+": expected RFC3339 or YYYY-MM-DD")
			return nil, false
		}
	}
	return &parsed, true
}
