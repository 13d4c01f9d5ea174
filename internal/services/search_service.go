package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"discovarr/internal/models"

	"gorm.io/gorm"
)

// 默认搜索，每周推荐任务引用它的提示词模板
const (
	DefaultSearchID   = 1
	DefaultSearchName = "recently_watched"
)

// SearchRequest 创建或更新搜索的请求体
type SearchRequest struct {
	Name   string                 `json:"name"`
	Prompt string                 `json:"prompt"`
	Kwargs map[string]interface{} `json:"kwargs,omitempty"`
}

// SearchWithSchedule 搜索及其关联的调度信息
type SearchWithSchedule struct {
	*models.Search
	Schedule *models.Schedule `json:"schedule,omitempty"`
}

// SearchService 保存的搜索管理接口
type SearchService interface {
	// Initialize 确保默认搜索存在
	Initialize(ctx context.Context) error
	// List 返回最近的搜索，附带各自的调度
	List(ctx context.Context, limit int) ([]*SearchWithSchedule, error)
	// Get 按ID取单条搜索
	Get(ctx context.Context, id uint) (*models.Search, error)
	// Create 保存新搜索
	Create(ctx context.Context, req *SearchRequest) (*models.Search, error)
	// Update 更新已有搜索
	Update(ctx context.Context, id uint, req *SearchRequest) (*models.Search, error)
	// Delete 删除搜索及其关联调度
	Delete(ctx context.Context, id uint) error
}

// SearchServiceImpl 搜索服务实现
type SearchServiceImpl struct {
	db *gorm.DB
}

// NewSearchService 创建搜索服务
func NewSearchService(db *gorm.DB) *SearchServiceImpl {
	return &SearchServiceImpl{db: db}
}

// Initialize 确保默认搜索存在
// 周期性推荐任务依赖该行的提示词模板
func (s *SearchServiceImpl) Initialize(ctx context.Context) error {
	var search models.Search
	err := s.db.WithContext(ctx).First(&search, DefaultSearchID).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check default search: %w", err)
	}

	search = models.Search{
		ID:     DefaultSearchID,
		Name:   DefaultSearchName,
		Prompt: models.DefaultPromptTemplate,
	}
	if err := s.db.WithContext(ctx).Create(&search).Error; err != nil {
		return fmt.Errorf("failed to create default search: %w", err)
	}
	log.Printf("Created default search %q", DefaultSearchName)
	return nil
}

// List 返回最近的搜索，按创建时间倒序，附带各自的调度
func (s *SearchServiceImpl) List(ctx context.Context, limit int) ([]*SearchWithSchedule, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var searches []*models.Search
	if err := query.Find(&searches).Error; err != nil {
		return nil, fmt.Errorf("failed to list searches: %w", err)
	}
	if len(searches) == 0 {
		return []*SearchWithSchedule{}, nil
	}

	ids := make([]uint, 0, len(searches))
	for _, search := range searches {
		ids = append(ids, search.ID)
	}

	var schedules []*models.Schedule
	err := s.db.WithContext(ctx).Where("search_id IN ?", ids).Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load schedules for searches: %w", err)
	}
	bySearch := make(map[uint]*models.Schedule, len(schedules))
	for _, schedule := range schedules {
		if schedule.SearchID != nil {
			bySearch[*schedule.SearchID] = schedule
		}
	}

	result := make([]*SearchWithSchedule, 0, len(searches))
	for _, search := range searches {
		result = append(result, &SearchWithSchedule{
			Search:   search,
			Schedule: bySearch[search.ID],
		})
	}
	return result, nil
}

// Get 按ID取单条搜索
func (s *SearchServiceImpl) Get(ctx context.Context, id uint) (*models.Search, error) {
	var search models.Search
	if err := s.db.WithContext(ctx).First(&search, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("search %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load search %d: %w", id, err)
	}
	return &search, nil
}

// Create 保存新搜索
func (s *SearchServiceImpl) Create(ctx context.Context, req *SearchRequest) (*models.Search, error) {
	if req.Prompt == "" {
		return nil, errors.New("search prompt is required")
	}
	if req.Name == "" {
		return nil, errors.New("search name is required")
	}

	search := models.Search{
		Name:   req.Name,
		Prompt: req.Prompt,
	}
	if req.Kwargs != nil {
		if err := search.SetKwargs(req.Kwargs); err != nil {
			return nil, fmt.Errorf("failed to encode search kwargs: %w", err)
		}
	}
	if err := s.db.WithContext(ctx).Create(&search).Error; err != nil {
		return nil, fmt.Errorf("failed to create search: %w", err)
	}
	log.Printf("Saved search %q with ID %d", search.Name, search.ID)
	return &search, nil
}

// Update 更新已有搜索
// name为空时保留原值
func (s *SearchServiceImpl) Update(ctx context.Context, id uint, req *SearchRequest) (*models.Search, error) {
	if req.Prompt == "" {
		return nil, errors.New("search prompt is required")
	}

	search, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	search.Prompt = req.Prompt
	if req.Name != "" {
		search.Name = req.Name
	}
	if req.Kwargs != nil {
		if err := search.SetKwargs(req.Kwargs); err != nil {
			return nil, fmt.Errorf("failed to encode search kwargs: %w", err)
		}
	}
	if err := s.db.WithContext(ctx).Save(search).Error; err != nil {
		return nil, fmt.Errorf("failed to update search %d: %w", id, err)
	}
	return search, nil
}

// Delete 删除搜索及其关联调度
func (s *SearchServiceImpl) Delete(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.Search{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete search %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("search %d: %w", id, ErrNotFound)
	}

	// 调度表没有外键约束，删除搜索时一并清理其调度
	cleanup := s.db.WithContext(ctx).Where("search_id = ?", id).Delete(&models.Schedule{})
	if cleanup.Error != nil {
		log.Printf("Failed to delete schedules for search %d: %v", id, cleanup.Error)
	} else if cleanup.RowsAffected > 0 {
		log.Printf("Deleted %d schedule(s) for search %d", cleanup.RowsAffected, id)
	}
	return nil
}
