package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"discovarr/internal/cache"
	"discovarr/internal/models"
	"discovarr/internal/providers"

	"golang.org/x/text/language"
	"gorm.io/gorm"
)

// UserSyncResult 单个用户一次同步的结果
type UserSyncResult struct {
	UserID       string   `json:"id"`
	RecentTitles []string `json:"recent_titles"`
}

// UserWatchGroup 按用户分组的观看历史
type UserWatchGroup struct {
	User    string                 `json:"user"`
	History []*models.WatchHistory `json:"history"`
}

// ManualWatchRequest 手动添加观看记录的请求
type ManualWatchRequest struct {
	Title           string `json:"title"`
	MediaType       string `json:"media_type"`
	WatchedBy       string `json:"watched_by"`
	TmdbID          string `json:"tmdb_id"`
	LastPlayedDate  string `json:"last_played_date"`
	Source          string `json:"source"`
	PosterURLSource string `json:"poster_url_source"`
}

// HistoryService 观看历史服务接口
type HistoryService interface {
	// 同步所有启用的媒体库提供商的观看历史，按用户名汇总同步结果
	SyncAll(ctx context.Context) (map[string]*UserSyncResult, error)

	// 列出观看历史，最近播放的在前
	List(ctx context.Context, limit int, processed *bool) ([]*models.WatchHistory, error)

	// 按用户分组列出指定时间范围内的观看历史
	ListGrouped(ctx context.Context, start, end *time.Time) ([]*UserWatchGroup, error)

	// 手动添加或更新一条观看记录
	AddManual(ctx context.Context, req *ManualWatchRequest) (*models.WatchHistory, error)

	// 删除一条观看记录
	Delete(ctx context.Context, id uint) error

	// 清空观看历史
	DeleteAll(ctx context.Context) error

	// 标记记录是否已被推荐流程消费
	SetProcessed(ctx context.Context, id uint, processed bool) error

	// 返回尚未被推荐流程消费的记录
	Unprocessed(ctx context.Context, limit int) ([]*models.WatchHistory, error)
}

// HistoryServiceImpl 观看历史服务实现
type HistoryServiceImpl struct {
	db       *gorm.DB
	settings SettingsService
	gateway  *ProviderGateway
	images   *cache.ImageCache
	retry    *providers.RetryHandler
}

// NewHistoryService 创建观看历史服务
func NewHistoryService(db *gorm.DB, settings SettingsService, gateway *ProviderGateway, images *cache.ImageCache) HistoryService {
	return &HistoryServiceImpl{
		db:       db,
		settings: settings,
		gateway:  gateway,
		images:   images,
		retry:    providers.NewRetryHandler(nil),
	}
}

// SyncAll 同步所有启用的媒体库提供商的观看历史
// 单个提供商失败不会中断其余提供商的同步
func (s *HistoryServiceImpl) SyncAll(ctx context.Context) (map[string]*UserSyncResult, error) {
	bindings, err := s.gateway.LibraryProviders(ctx)
	if err != nil {
		return nil, err
	}

	recentLimit, err := s.settings.GetInt(ctx, "app", "recent_limit")
	if err != nil {
		return nil, err
	}

	results := make(map[string]*UserSyncResult)
	for _, binding := range bindings {
		if !binding.EnableHistory {
			log.Printf("History sync disabled for %s, skipping", binding.Name)
			continue
		}
		if err := s.syncProvider(ctx, binding, recentLimit, results); err != nil {
			log.Printf("Watch history sync failed for %s: %v", binding.Name, err)
		}
	}

	for _, result := range results {
		result.RecentTitles = uniqueSorted(result.RecentTitles)
	}
	return results, nil
}

// syncProvider 同步单个提供商所有用户的观看历史和收藏
func (s *HistoryServiceImpl) syncProvider(ctx context.Context, binding *LibraryBinding, recentLimit int, results map[string]*UserSyncResult) error {
	users, err := binding.Provider.GetUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list %s users: %w", binding.Name, err)
	}
	if binding.DefaultUser != "" {
		users = filterUsersByName(users, binding.DefaultUser)
	}
	if len(users) == 0 {
		log.Printf("No %s users found to sync watch history", binding.Name)
		return nil
	}

	log.Printf("Starting %s watch history sync for %d user(s)", binding.Name, len(users))
	for _, user := range users {
		if user.Name == "" || user.ID == "" {
			log.Printf("Skipping %s user with missing name or id", binding.Name)
			continue
		}

		result, ok := results[user.Name]
		if !ok {
			result = &UserSyncResult{UserID: user.ID}
			results[user.Name] = result
		}

		// 该提供商还没有任何媒体记录时拉取全量历史，否则只取最近的条目
		limit := 0
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Media{}).
			Where("source_provider = ? AND entity_type = ?", binding.Name, models.EntityTypeLibrary).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count %s media entries: %w", binding.Name, err)
		}
		if count > 0 {
			limit = recentLimit
		}

		// 临时性故障（超时、连接中断、限流）重试后再放弃
		var items []*providers.WatchedItem
		err := s.retry.ExecuteWithRetry(ctx, binding.Name, func() error {
			var fetchErr error
			items, fetchErr = binding.Provider.GetRecentlyWatched(ctx, user.ID, limit)
			return fetchErr
		})
		if err != nil {
			log.Printf("Failed to fetch recently watched for %s user %s: %v", binding.Name, user.Name, err)
			continue
		}
		synced := s.storeWatchedItems(ctx, binding.Name, user.Name, items)
		result.RecentTitles = append(result.RecentTitles, synced...)

		s.syncFavorites(ctx, binding, user)
	}
	return nil
}

// storeWatchedItems 将一批观看条目写入媒体表和历史表，返回成功同步的标题
func (s *HistoryServiceImpl) storeWatchedItems(ctx context.Context, source, userName string, items []*providers.WatchedItem) []string {
	var titles []string
	for _, item := range items {
		if item.Name == "" || item.MediaType == "" || item.TmdbID == "" {
			log.Printf("Skipping %s item with missing id, type or name: %q", source, item.Name)
			continue
		}

		media, created, err := s.findOrCreateLibraryMedia(ctx, source, item)
		if err != nil {
			log.Printf("Failed to store media entry for %q: %v", item.Name, err)
			continue
		}
		if _, err := s.upsertHistory(ctx, media.ID, userName, item.LastPlayedDate); err != nil {
			log.Printf("Failed to record watch history for %q by %s: %v", item.Name, userName, err)
			continue
		}
		if !created {
			err := s.db.WithContext(ctx).Model(&models.Media{}).
				Where("id = ?", media.ID).
				Updates(map[string]interface{}{
					"watched":     true,
					"watch_count": gorm.Expr("watch_count + 1"),
				}).Error
			if err != nil {
				log.Printf("Failed to update watch count for %q: %v", item.Name, err)
			}
		}
		titles = append(titles, item.Name)
	}
	if len(titles) > 0 {
		log.Printf("Synced %d watched title(s) for %s from %s", len(titles), userName, source)
	}
	return titles
}

// syncFavorites 将提供商侧的收藏状态同步到已有媒体条目
func (s *HistoryServiceImpl) syncFavorites(ctx context.Context, binding *LibraryBinding, user *providers.LibraryUser) {
	favorites, err := binding.Provider.GetFavorites(ctx, user.ID, 0)
	if err != nil {
		if !errors.Is(err, providers.ErrNotSupported) {
			log.Printf("Failed to fetch favorites for %s user %s: %v", binding.Name, user.Name, err)
		}
		return
	}

	for _, item := range favorites {
		if item.Name == "" || item.MediaType == "" {
			continue
		}
		err := s.db.WithContext(ctx).Model(&models.Media{}).
			Where("LOWER(title) = ? AND media_type = ? AND favorite = ?",
				strings.ToLower(item.Name), item.MediaType, false).
			Update("favorite", true).Error
		if err != nil {
			log.Printf("Failed to mark favorite for %q: %v", item.Name, err)
		}
	}
}

// findOrCreateLibraryMedia 按标题和类型查找媒体条目，不存在时创建媒体库条目
func (s *HistoryServiceImpl) findOrCreateLibraryMedia(ctx context.Context, source string, item *providers.WatchedItem) (*models.Media, bool, error) {
	var media models.Media
	err := s.db.WithContext(ctx).
		Where("LOWER(title) = ? AND media_type = ?", strings.ToLower(item.Name), item.MediaType).
		First(&media).Error
	if err == nil {
		return &media, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to query media %q: %w", item.Name, err)
	}

	posterURL := ""
	if item.PosterURL != "" {
		cacheID := item.TmdbID
		if cacheID == "" {
			cacheID = item.Name
		}
		cached, cacheErr := s.images.SaveFromURL(ctx, item.PosterURL, source, item.MediaType, cacheID)
		if cacheErr != nil {
			// 缓存失败时保留远端地址
			log.Printf("Failed to cache poster for %q: %v", item.Name, cacheErr)
			posterURL = item.PosterURL
		} else {
			posterURL = cached
		}
	}

	media = models.Media{
		Title:            item.Name,
		EntityType:       models.EntityTypeLibrary,
		MediaType:        item.MediaType,
		SourceProvider:   source,
		TmdbID:           item.TmdbID,
		PosterURL:        posterURL,
		PosterURLSource:  item.PosterURL,
		OriginalLanguage: normalizeLanguage(item.Language),
		Watched:          true,
		Favorite:         item.IsFavorite,
		WatchCount:       1,
	}
	if err := s.db.WithContext(ctx).Create(&media).Error; err != nil {
		return nil, false, fmt.Errorf("failed to create media entry for %q: %w", item.Name, err)
	}
	log.Printf("Created media entry %q (%s) from %s watch history", item.Name, item.MediaType, source)
	return &media, true, nil
}

// upsertHistory 以(media_id, watched_by)为键更新或插入观看记录
// 更新只刷新最近播放时间，processed状态保持不变
func (s *HistoryServiceImpl) upsertHistory(ctx context.Context, mediaID uint, watchedBy string, lastPlayed *time.Time) (*models.WatchHistory, error) {
	playedAt := time.Now().UTC()
	if lastPlayed != nil {
		playedAt = lastPlayed.UTC()
	}

	var entry models.WatchHistory
	err := s.db.WithContext(ctx).
		Where("media_id = ? AND LOWER(watched_by) = ?", mediaID, strings.ToLower(watchedBy)).
		First(&entry).Error
	if err == nil {
		entry.LastPlayedDate = playedAt
		if err := s.db.WithContext(ctx).Save(&entry).Error; err != nil {
			return nil, fmt.Errorf("failed to update watch history: %w", err)
		}
		return &entry, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query watch history: %w", err)
	}

	entry = models.WatchHistory{
		MediaID:        mediaID,
		WatchedBy:      watchedBy,
		LastPlayedDate: playedAt,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("failed to create watch history: %w", err)
	}
	return &entry, nil
}

// List 列出观看历史
func (s *HistoryServiceImpl) List(ctx context.Context, limit int, processed *bool) ([]*models.WatchHistory, error) {
	query := s.db.WithContext(ctx).
		Preload("Media").
		Order("last_played_date DESC")
	if processed != nil {
		query = query.Where("processed = ?", *processed)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entries []*models.WatchHistory
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list watch history: %w", err)
	}
	return entries, nil
}

// ListGrouped 按用户分组列出观看历史，分组按首次出现的顺序排列
func (s *HistoryServiceImpl) ListGrouped(ctx context.Context, start, end *time.Time) ([]*UserWatchGroup, error) {
	query := s.db.WithContext(ctx).
		Preload("Media").
		Order("last_played_date DESC")
	if start != nil {
		query = query.Where("last_played_date >= ?", *start)
	}
	if end != nil {
		query = query.Where("last_played_date <= ?", *end)
	}

	var entries []*models.WatchHistory
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list watch history: %w", err)
	}

	groupIndex := make(map[string]*UserWatchGroup)
	var groups []*UserWatchGroup
	for _, entry := range entries {
		group, ok := groupIndex[entry.WatchedBy]
		if !ok {
			group = &UserWatchGroup{User: entry.WatchedBy}
			groupIndex[entry.WatchedBy] = group
			groups = append(groups, group)
		}
		group.History = append(group.History, entry)
	}
	return groups, nil
}

// AddManual 手动添加或更新一条观看记录
func (s *HistoryServiceImpl) AddManual(ctx context.Context, req *ManualWatchRequest) (*models.WatchHistory, error) {
	if req.Title == "" || req.WatchedBy == "" {
		return nil, fmt.Errorf("title and watched_by are required")
	}
	if req.MediaType != models.MediaTypeMovie && req.MediaType != models.MediaTypeTV {
		return nil, fmt.Errorf("invalid media_type %q, must be 'tv' or 'movie'", req.MediaType)
	}

	playedAt := time.Now().UTC()
	if req.LastPlayedDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.LastPlayedDate)
		if err != nil {
			return nil, fmt.Errorf("invalid last_played_date %q, must be RFC 3339: %w", req.LastPlayedDate, err)
		}
		playedAt = parsed.UTC()
	}

	source := req.Source
	if source == "" {
		source = "manual"
	}

	item := &providers.WatchedItem{
		Name:           req.Title,
		TmdbID:         req.TmdbID,
		MediaType:      req.MediaType,
		LastPlayedDate: &playedAt,
		PosterURL:      req.PosterURLSource,
	}
	media, created, err := s.findOrCreateLibraryMedia(ctx, source, item)
	if err != nil {
		return nil, err
	}

	entry, err := s.upsertHistory(ctx, media.ID, req.WatchedBy, &playedAt)
	if err != nil {
		return nil, err
	}

	if !created {
		err := s.db.WithContext(ctx).Model(&models.Media{}).
			Where("id = ?", media.ID).
			Updates(map[string]interface{}{
				"watched":     true,
				"watch_count": gorm.Expr("watch_count + 1"),
			}).Error
		if err != nil {
			return nil, fmt.Errorf("failed to update watch count for %q: %w", req.Title, err)
		}
	}

	entry.Media = media
	return entry, nil
}

// Delete 删除一条观看记录
func (s *HistoryServiceImpl) Delete(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.WatchHistory{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete watch history %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("watch history %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteAll 清空观看历史
func (s *HistoryServiceImpl) DeleteAll(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&models.WatchHistory{}).Error; err != nil {
		return fmt.Errorf("failed to delete watch history: %w", err)
	}
	return nil
}

// SetProcessed 标记记录是否已被推荐流程消费
func (s *HistoryServiceImpl) SetProcessed(ctx context.Context, id uint, processed bool) error {
	var entry models.WatchHistory
	if err := s.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("watch history %d: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to query watch history %d: %w", id, err)
	}

	if processed {
		entry.MarkProcessed()
	} else {
		entry.Processed = false
		entry.ProcessedAt = nil
	}
	if err := s.db.WithContext(ctx).Save(&entry).Error; err != nil {
		return fmt.Errorf("failed to update watch history %d: %w", id, err)
	}
	return nil
}

// Unprocessed 返回尚未被推荐流程消费的记录
func (s *HistoryServiceImpl) Unprocessed(ctx context.Context, limit int) ([]*models.WatchHistory, error) {
	processed := false
	return s.List(ctx, limit, &processed)
}

// filterUsersByName 按名称过滤用户列表，忽略大小写
func filterUsersByName(users []*providers.LibraryUser, name string) []*providers.LibraryUser {
	var matched []*providers.LibraryUser
	for _, user := range users {
		if strings.EqualFold(user.Name, name) {
			matched = append(matched, user)
		}
	}
	return matched
}

// uniqueSorted 去重并排序
func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var unique []string
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		unique = append(unique, value)
	}
	sort.Strings(unique)
	return unique
}

// normalizeLanguage 将提供商返回的语言代码规范化为BCP 47标签
// 无法解析时原样保留
func normalizeLanguage(code string) string {
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	return tag.String()
}
