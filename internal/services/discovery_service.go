package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"discovarr/internal/cache"
	"discovarr/internal/models"
	"discovarr/internal/providers"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SuggestionRun 一次推荐运行的结果
// RunID关联llm_stats中的token统计
type SuggestionRun struct {
	RunID       string                `json:"run_id"`
	Provider    string                `json:"provider"`
	Model       string                `json:"model"`
	Prompt      string                `json:"prompt"`
	Suggestions []*models.Media       `json:"suggestions"`
	Usage       *providers.TokenUsage `json:"usage,omitempty"`
}

// TokenStatSummary 按提供商聚合的token用量
type TokenStatSummary struct {
	SourceProvider       string `json:"source_provider"`
	Runs                 int64  `json:"runs"`
	PromptTokenCount     int64  `json:"prompt_token_count"`
	CandidatesTokenCount int64  `json:"candidates_token_count"`
	ThoughtsTokenCount   int64  `json:"thoughts_token_count"`
	TotalTokenCount      int64  `json:"total_token_count"`
}

// DiscoveryService 推荐服务接口
type DiscoveryService interface {
	// 渲染提示词模板，template为空时使用app.default_prompt
	RenderPrompt(ctx context.Context, mediaName, template string) (string, error)

	// 生成相似媒体推荐
	// searchID非空时记录保存的搜索的运行时间，且结果总是落库
	SimilarMedia(ctx context.Context, mediaName, customPrompt string, searchID *uint) (*SuggestionRun, error)

	// 消费未处理的观看历史，为每条记录生成一次推荐
	ProcessWatchHistory(ctx context.Context) error

	// 列出启用的LLM提供商的可用模型
	AvailableModels(ctx context.Context) (map[string][]string, error)

	// 列出token用量统计
	TokenStats(ctx context.Context) ([]*models.LLMStat, error)

	// 按提供商聚合token用量，可选按时间范围过滤
	TokenStatsSummary(ctx context.Context, start, end *time.Time) ([]*TokenStatSummary, error)
}

// DiscoveryServiceImpl 推荐服务实现
type DiscoveryServiceImpl struct {
	db       *gorm.DB
	settings SettingsService
	gateway  *ProviderGateway
	history  HistoryService
	images   *cache.ImageCache
}

// NewDiscoveryService 创建推荐服务
func NewDiscoveryService(db *gorm.DB, settings SettingsService, gateway *ProviderGateway, history HistoryService, images *cache.ImageCache) DiscoveryService {
	return &DiscoveryServiceImpl{
		db:       db,
		settings: settings,
		gateway:  gateway,
		history:  history,
		images:   images,
	}
}

// RenderPrompt 渲染提示词模板
func (s *DiscoveryServiceImpl) RenderPrompt(ctx context.Context, mediaName, template string) (string, error) {
	if template == "" {
		var err error
		template, err = s.settings.Get(ctx, "app", "default_prompt")
		if err != nil {
			return "", err
		}
	}
	limit, err := s.settings.GetInt(ctx, "app", "suggestion_limit")
	if err != nil {
		return "", err
	}
	exclusions, err := s.exclusionList(ctx)
	if err != nil {
		return "", err
	}
	return renderPromptTemplate(template, limit, mediaName, exclusions), nil
}

// SimilarMedia 生成相似媒体推荐并按设置持久化
func (s *DiscoveryServiceImpl) SimilarMedia(ctx context.Context, mediaName, customPrompt string, searchID *uint) (*SuggestionRun, error) {
	prompt, err := s.RenderPrompt(ctx, mediaName, customPrompt)
	if err != nil {
		return nil, err
	}
	systemPrompt, err := s.settings.Get(ctx, "app", "system_prompt")
	if err != nil {
		return nil, err
	}

	bindings, err := s.gateway.LLMProviders(ctx)
	if err != nil {
		return nil, err
	}
	if len(bindings) == 0 {
		return nil, fmt.Errorf("no LLM provider is enabled or configured")
	}
	binding := bindings[0]
	log.Printf("Using %s provider (model %s) for suggestions", binding.Name, binding.Model)

	result, err := binding.Provider.GetSimilarMedia(ctx, &providers.SimilarMediaRequest{
		Model:          binding.Model,
		Prompt:         prompt,
		SystemPrompt:   systemPrompt,
		Temperature:    binding.Temperature,
		ThinkingBudget: binding.ThinkingBudget,
	})
	if err != nil {
		return nil, fmt.Errorf("suggestion generation failed: %w", err)
	}

	run := &SuggestionRun{
		RunID:    uuid.NewString(),
		Provider: binding.Name,
		Model:    binding.Model,
		Prompt:   prompt,
		Usage:    &result.Usage,
	}
	s.recordTokenUsage(ctx, run)

	autoSave, err := s.settings.GetBool(ctx, "app", "auto_media_save")
	if err != nil {
		return nil, err
	}
	save := autoSave || searchID != nil

	for _, suggestion := range result.Suggestions {
		if suggestion.Title == "" || suggestion.MediaType == "" {
			log.Printf("Skipping suggestion with missing title or media type")
			continue
		}
		media, err := s.persistSuggestion(ctx, suggestion, mediaName, binding.Name, searchID, save)
		if err != nil {
			log.Printf("Failed to persist suggestion %q: %v", suggestion.Title, err)
			continue
		}
		run.Suggestions = append(run.Suggestions, media)
	}

	if searchID != nil {
		if err := s.markSearchRun(ctx, *searchID); err != nil {
			log.Printf("Failed to record run date for search %d: %v", *searchID, err)
		}
	}
	return run, nil
}

// ProcessWatchHistory 为每条未处理的观看历史生成推荐并标记已处理
func (s *DiscoveryServiceImpl) ProcessWatchHistory(ctx context.Context) error {
	var defaultSearch models.Search
	if err := s.db.WithContext(ctx).First(&defaultSearch, DefaultSearchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("default search not found, cannot process watch history")
		}
		return fmt.Errorf("failed to load default search: %w", err)
	}

	recentLimit, err := s.settings.GetInt(ctx, "app", "recent_limit")
	if err != nil {
		return err
	}

	entries, err := s.history.Unprocessed(ctx, recentLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		log.Printf("No new watch history items to process")
		return nil
	}

	searchID := defaultSearch.ID
	for _, entry := range entries {
		if entry.Media == nil {
			log.Printf("Watch history %d has no media entry, skipping", entry.ID)
			continue
		}
		if _, err := s.SimilarMedia(ctx, entry.Media.Title, defaultSearch.Prompt, &searchID); err != nil {
			log.Printf("Failed to generate suggestions for %q: %v", entry.Media.Title, err)
			continue
		}
		if err := s.history.SetProcessed(ctx, entry.ID, true); err != nil {
			log.Printf("Failed to mark watch history %d processed: %v", entry.ID, err)
		}
	}
	return nil
}

// AvailableModels 列出启用的LLM提供商的可用模型
func (s *DiscoveryServiceImpl) AvailableModels(ctx context.Context) (map[string][]string, error) {
	bindings, err := s.gateway.LLMProviders(ctx)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]string, len(bindings))
	for _, binding := range bindings {
		models, err := binding.Provider.GetModels(ctx)
		if err != nil {
			log.Printf("Failed to fetch models from %s: %v", binding.Name, err)
			result[binding.Name] = nil
			continue
		}
		result[binding.Name] = models
	}
	return result, nil
}

// TokenStats 列出token用量统计，最近的在前
func (s *DiscoveryServiceImpl) TokenStats(ctx context.Context) ([]*models.LLMStat, error) {
	var stats []*models.LLMStat
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list llm stats: %w", err)
	}
	return stats, nil
}

// TokenStatsSummary 按提供商聚合token用量，可选按时间范围过滤
func (s *DiscoveryServiceImpl) TokenStatsSummary(ctx context.Context, start, end *time.Time) ([]*TokenStatSummary, error) {
	query := s.db.WithContext(ctx).
		Model(&models.LLMStat{}).
		Select("source_provider, COUNT(*) AS runs, " +
			"SUM(prompt_token_count) AS prompt_token_count, " +
			"SUM(candidates_token_count) AS candidates_token_count, " +
			"SUM(thoughts_token_count) AS thoughts_token_count, " +
			"SUM(total_token_count) AS total_token_count")
	if start != nil {
		query = query.Where("created_at >= ?", *start)
	}
	if end != nil {
		query = query.Where("created_at <= ?", *end)
	}

	var summaries []*TokenStatSummary
	err := query.
		Group("source_provider").
		Order("source_provider ASC").
		Scan(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarize llm stats: %w", err)
	}
	return summaries, nil
}

// recordTokenUsage 保存一次运行的token统计，失败只记录日志
func (s *DiscoveryServiceImpl) recordTokenUsage(ctx context.Context, run *SuggestionRun) {
	stat := &models.LLMStat{
		SourceProvider: run.Provider,
		Reference:      run.RunID,
	}
	if run.Usage != nil {
		stat.PromptTokenCount = run.Usage.PromptTokens
		stat.CandidatesTokenCount = run.Usage.CandidatesTokens
		stat.ThoughtsTokenCount = run.Usage.ThoughtsTokens
		stat.TotalTokenCount = run.Usage.TotalTokens
	}
	if err := s.db.WithContext(ctx).Create(stat).Error; err != nil {
		log.Printf("Failed to store token usage for run %s: %v", run.RunID, err)
	}
}

// persistSuggestion 将单条推荐写入媒体表
// 已存在的条目刷新推荐字段，save为false时返回未落库的临时条目
func (s *DiscoveryServiceImpl) persistSuggestion(ctx context.Context, suggestion *providers.Suggestion, sourceTitle, provider string, searchID *uint, save bool) (*models.Media, error) {
	rtScore := suggestion.RtScore

	var existing models.Media
	err := s.db.WithContext(ctx).
		Where("LOWER(title) = ? AND media_type = ?", strings.ToLower(suggestion.Title), suggestion.MediaType).
		First(&existing).Error
	if err == nil {
		if !save {
			return &existing, nil
		}
		updates := map[string]interface{}{
			"source_title": sourceTitle,
			"description":  suggestion.Description,
			"similarity":   suggestion.Similarity,
			"rt_url":       suggestion.RtURL,
			"rt_score":     rtScore,
		}
		if err := s.db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update media entry: %w", err)
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query media: %w", err)
	}

	media := &models.Media{
		Title:          suggestion.Title,
		EntityType:     models.EntityTypeSuggestion,
		MediaType:      suggestion.MediaType,
		SourceProvider: provider,
		SourceTitle:    sourceTitle,
		SearchID:       searchID,
		Description:    suggestion.Description,
		Similarity:     suggestion.Similarity,
		RtURL:          suggestion.RtURL,
		RtScore:        &rtScore,
	}
	if !save {
		return media, nil
	}
	if err := s.db.WithContext(ctx).Create(media).Error; err != nil {
		return nil, fmt.Errorf("failed to create media entry: %w", err)
	}
	log.Printf("Created suggestion entry %q (%s) from %s", media.Title, media.MediaType, provider)
	return media, nil
}

// markSearchRun 记录保存的搜索的最近运行时间
func (s *DiscoveryServiceImpl) markSearchRun(ctx context.Context, searchID uint) error {
	var search models.Search
	if err := s.db.WithContext(ctx).First(&search, searchID).Error; err != nil {
		return err
	}
	search.MarkRun()
	return s.db.WithContext(ctx).Save(&search).Error
}

// exclusionList 组装排除列表：媒体库提供商的全部条目加上被忽略的条目
func (s *DiscoveryServiceImpl) exclusionList(ctx context.Context) ([]string, error) {
	var titles []string

	bindings, err := s.gateway.LibraryProviders(ctx)
	if err != nil {
		return nil, err
	}
	for _, binding := range bindings {
		if !binding.EnableMedia {
			continue
		}
		items, err := binding.Provider.GetAllItems(ctx)
		if err != nil {
			if !errors.Is(err, providers.ErrNotSupported) {
				log.Printf("Failed to list %s library items: %v", binding.Name, err)
			}
			continue
		}
		for _, item := range items {
			if item.Name != "" {
				titles = append(titles, item.Name)
			}
		}
	}

	var ignored []string
	err = s.db.WithContext(ctx).
		Model(&models.Media{}).
		Where("\"ignore\" = ?", true).
		Pluck("title", &ignored).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ignored media: %w", err)
	}
	titles = append(titles, ignored...)

	return uniqueSorted(titles), nil
}

// renderPromptTemplate 展开提示词模板中的变量
func renderPromptTemplate(template string, limit int, mediaName string, exclusions []string) string {
	replacer := strings.NewReplacer(
		"{{limit}}", strconv.Itoa(limit),
		"{{media_name}}", mediaName,
		"{{all_media}}", strings.Join(exclusions, ","),
	)
	return replacer.Replace(template)
}
