package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"discovarr/internal/models"

	"gorm.io/gorm"
)

// 内置的调度函数名，schedules.func_name引用
const (
	JobSyncWatchHistory    = "sync_watch_history"
	JobProcessWatchHistory = "process_watch_history"
	JobSimilarMedia        = "get_similar_media"
)

// ScheduleJob 调度任务入口
// 运行参数从schedule行的kwargs解析
type ScheduleJob func(ctx context.Context, schedule *models.Schedule) error

// ScheduleRequest 搜索调度的创建或更新请求
// hour和minute为nil表示通配，字符串字段空值或"*"表示通配
type ScheduleRequest struct {
	Year      string `json:"year"`
	Month     string `json:"month"`
	Day       string `json:"day"`
	DayOfWeek string `json:"day_of_week"`
	Hour      *int   `json:"hour,omitempty"`
	Minute    *int   `json:"minute,omitempty"`
	Enabled   bool   `json:"enabled"`
	Prompt    string `json:"prompt,omitempty"`
}

// SchedulerService 定时任务调度接口
type SchedulerService interface {
	// Initialize 确保默认调度存在
	Initialize(ctx context.Context) error
	// RegisterJob 按函数名注册任务实现
	RegisterJob(funcName string, job ScheduleJob)
	// Start 启动调度循环
	Start(ctx context.Context) error
	// Stop 停止调度循环
	Stop()
	// GetForSearch 返回搜索的调度，不存在时返回nil而非错误
	GetForSearch(ctx context.Context, searchID uint) (*models.Schedule, error)
	// UpsertForSearch 创建或更新搜索的调度
	UpsertForSearch(ctx context.Context, searchID uint, req *ScheduleRequest) (*models.Schedule, error)
	// DeleteForSearch 删除搜索的调度
	DeleteForSearch(ctx context.Context, searchID uint) error
	// Trigger 立即执行指定job，未启用的job视为不存在
	Trigger(ctx context.Context, jobID string) error
}

// SchedulerServiceImpl 基于轮询的调度器实现
// 每个tick检查一次启用的schedule行，命中当前时刻的任务异步执行
type SchedulerServiceImpl struct {
	db       *gorm.DB
	tick     time.Duration
	ticker   *time.Ticker
	stopChan chan struct{}

	jobsMu sync.RWMutex
	jobs   map[string]ScheduleJob

	// lastRun按job记录最近触发的分钟，避免tick小于一分钟时重复触发
	runMu   sync.Mutex
	lastRun map[string]time.Time
}

// NewSchedulerService 创建调度服务
func NewSchedulerService(db *gorm.DB, tick time.Duration) *SchedulerServiceImpl {
	if tick <= 0 {
		tick = time.Minute
	}
	return &SchedulerServiceImpl{
		db:       db,
		tick:     tick,
		stopChan: make(chan struct{}),
		jobs:     make(map[string]ScheduleJob),
		lastRun:  make(map[string]time.Time),
	}
}

// Initialize 确保默认调度存在
// 周日零点的推荐任务默认停用，每天凌晨三点的观看历史同步默认启用
func (s *SchedulerServiceImpl) Initialize(ctx context.Context) error {
	searchID := uint(DefaultSearchID)
	hourZero, minuteZero, hourThree := 0, 0, 3

	defaults := []*models.Schedule{
		{
			SearchID:  &searchID,
			JobID:     "recently_watched",
			FuncName:  JobProcessWatchHistory,
			Year:      "*",
			Month:     "*",
			Hour:      &hourZero,
			Minute:    &minuteZero,
			Day:       "*",
			DayOfWeek: "sun",
			Enabled:   false,
		},
		{
			JobID:     JobSyncWatchHistory,
			FuncName:  JobSyncWatchHistory,
			Year:      "*",
			Month:     "*",
			Hour:      &hourThree,
			Minute:    &minuteZero,
			Day:       "*",
			DayOfWeek: "*",
			Enabled:   true,
		},
	}

	for _, schedule := range defaults {
		var existing models.Schedule
		err := s.db.WithContext(ctx).Where("job_id = ?", schedule.JobID).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check schedule %s: %w", schedule.JobID, err)
		}
		if err := s.db.WithContext(ctx).Create(schedule).Error; err != nil {
			return fmt.Errorf("failed to create default schedule %s: %w", schedule.JobID, err)
		}
		log.Printf("Created default schedule %q", schedule.JobID)
	}
	return nil
}

// RegisterJob 按函数名注册任务实现
func (s *SchedulerServiceImpl) RegisterJob(funcName string, job ScheduleJob) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	s.jobs[funcName] = job
}

// Start 启动调度循环
func (s *SchedulerServiceImpl) Start(ctx context.Context) error {
	log.Println("Starting scheduler...")

	s.ticker = time.NewTicker(s.tick)

	go func() {
		for {
			select {
			case <-s.ticker.C:
				s.runDue(ctx, time.Now())
			case <-s.stopChan:
				log.Println("Stopping scheduler...")
				return
			case <-ctx.Done():
				log.Println("Context cancelled, stopping scheduler...")
				return
			}
		}
	}()

	return nil
}

// Stop 停止调度循环
func (s *SchedulerServiceImpl) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopChan)
}

// GetForSearch 返回搜索的调度，不存在时返回nil而非错误
func (s *SchedulerServiceImpl) GetForSearch(ctx context.Context, searchID uint) (*models.Schedule, error) {
	var schedule models.Schedule
	err := s.db.WithContext(ctx).Where("search_id = ?", searchID).First(&schedule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load schedule for search %d: %w", searchID, err)
	}
	return &schedule, nil
}

// UpsertForSearch 创建或更新搜索的调度
// 新建时job_id固定为get_similar_media_{searchID}
func (s *SchedulerServiceImpl) UpsertForSearch(ctx context.Context, searchID uint, req *ScheduleRequest) (*models.Schedule, error) {
	schedule, err := s.GetForSearch(ctx, searchID)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		sid := searchID
		schedule = &models.Schedule{
			SearchID: &sid,
			JobID:    fmt.Sprintf("%s_%d", JobSimilarMedia, searchID),
			FuncName: JobSimilarMedia,
		}
	}

	schedule.Year = wildcardDefault(req.Year)
	schedule.Month = wildcardDefault(req.Month)
	schedule.Day = wildcardDefault(req.Day)
	schedule.DayOfWeek = wildcardDefault(req.DayOfWeek)
	schedule.Hour = req.Hour
	schedule.Minute = req.Minute
	schedule.Enabled = req.Enabled
	if err := schedule.SetKwargs(searchJobKwargs(searchID, req.Prompt)); err != nil {
		return nil, fmt.Errorf("failed to encode schedule kwargs: %w", err)
	}

	if err := s.db.WithContext(ctx).Save(schedule).Error; err != nil {
		return nil, fmt.Errorf("failed to save schedule for search %d: %w", searchID, err)
	}
	log.Printf("Saved schedule %q for search %d (enabled=%t)", schedule.JobID, searchID, schedule.Enabled)
	return schedule, nil
}

// DeleteForSearch 删除搜索的调度
func (s *SchedulerServiceImpl) DeleteForSearch(ctx context.Context, searchID uint) error {
	result := s.db.WithContext(ctx).Where("search_id = ?", searchID).Delete(&models.Schedule{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete schedule for search %d: %w", searchID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("schedule for search %d: %w", searchID, ErrNotFound)
	}
	return nil
}

// Trigger 立即执行指定job，未启用的job视为不存在
func (s *SchedulerServiceImpl) Trigger(ctx context.Context, jobID string) error {
	var schedule models.Schedule
	err := s.db.WithContext(ctx).Where("job_id = ? AND enabled = ?", jobID, true).First(&schedule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
		}
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	s.jobsMu.RLock()
	job, ok := s.jobs[schedule.FuncName]
	s.jobsMu.RUnlock()
	if !ok {
		return fmt.Errorf("no registered function %q for job %s", schedule.FuncName, jobID)
	}

	log.Printf("Manually triggering job %s (%s)", jobID, schedule.FuncName)
	return job(ctx, &schedule)
}

// runDue 执行命中当前时刻的所有启用调度
func (s *SchedulerServiceImpl) runDue(ctx context.Context, now time.Time) {
	var schedules []*models.Schedule
	err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&schedules).Error
	if err != nil {
		log.Printf("Failed to load schedules: %v", err)
		return
	}

	for _, schedule := range schedules {
		if !matchesTime(schedule, now) {
			continue
		}
		if !s.markFired(schedule.JobID, now) {
			continue
		}
		go s.runJob(ctx, schedule)
	}
}

// markFired 记录本次触发，同一分钟内已触发过时返回false
func (s *SchedulerServiceImpl) markFired(jobID string, now time.Time) bool {
	minute := now.Truncate(time.Minute)
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if last, ok := s.lastRun[jobID]; ok && last.Equal(minute) {
		return false
	}
	s.lastRun[jobID] = minute
	return true
}

// runJob 执行单个调度任务
func (s *SchedulerServiceImpl) runJob(ctx context.Context, schedule *models.Schedule) {
	s.jobsMu.RLock()
	job, ok := s.jobs[schedule.FuncName]
	s.jobsMu.RUnlock()
	if !ok {
		log.Printf("No registered function %q for scheduled job %s", schedule.FuncName, schedule.JobID)
		return
	}

	log.Printf("Executing scheduled job %s (%s)", schedule.JobID, schedule.FuncName)
	if err := job(ctx, schedule); err != nil {
		log.Printf("Scheduled job %s failed: %v", schedule.JobID, err)
		return
	}
	log.Printf("Scheduled job %s completed", schedule.JobID)
}

// matchesTime 按cron风格字段判断时刻是否命中
func matchesTime(schedule *models.Schedule, now time.Time) bool {
	if schedule.Minute != nil && *schedule.Minute != now.Minute() {
		return false
	}
	if schedule.Hour != nil && *schedule.Hour != now.Hour() {
		return false
	}
	if !matchesNumericField(schedule.Day, now.Day()) {
		return false
	}
	if !matchesNumericField(schedule.Month, int(now.Month())) {
		return false
	}
	if !matchesNumericField(schedule.Year, now.Year()) {
		return false
	}
	return matchesDayOfWeek(schedule.DayOfWeek, now.Weekday())
}

// matchesNumericField 空值或"*"为通配，否则按数字精确匹配
func matchesNumericField(value string, actual int) bool {
	value = strings.TrimSpace(value)
	if value == "" || value == "*" {
		return true
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return false
	}
	return n == actual
}

// matchesDayOfWeek 支持sun、mon这类缩写、完整星期名和0-6数字，0为周日
func matchesDayOfWeek(value string, actual time.Weekday) bool {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" || value == "*" {
		return true
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n == int(actual)
	}
	if len(value) < 3 {
		return false
	}
	return strings.HasPrefix(strings.ToLower(actual.String()), value)
}

// wildcardDefault 空字符串归一为"*"
func wildcardDefault(value string) string {
	if strings.TrimSpace(value) == "" {
		return "*"
	}
	return value
}

// searchJobKwargs 构造get_similar_media任务的运行参数
// prompt为空时custom_prompt记为null，执行时回落到搜索自身的模板
func searchJobKwargs(searchID uint, prompt string) map[string]interface{} {
	var customPrompt interface{}
	if prompt != "" {
		customPrompt = prompt
	}
	return map[string]interface{}{
		"media_name":    nil,
		"search_id":     searchID,
		"custom_prompt": customPrompt,
	}
}
