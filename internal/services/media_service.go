package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"discovarr/internal/cache"
	"discovarr/internal/models"

	"gorm.io/gorm"
)

// MediaSearchResult 标题搜索返回的精简结构
type MediaSearchResult struct {
	Title     string `json:"title"`
	MediaID   uint   `json:"media_id"`
	TmdbID    string `json:"tmdb_id"`
	MediaType string `json:"media_type"`
}

// mediaFieldColumns 允许按列取唯一值的白名单
// 列名直接拼进SQL，必须限定在已知列内
var mediaFieldColumns = map[string]struct{}{
	"media_type":        {},
	"title":             {},
	"networks":          {},
	"genres":            {},
	"original_language": {},
	"source_provider":   {},
	"media_status":      {},
	"entity_type":       {},
}

// MediaService 媒体条目管理服务接口
type MediaService interface {
	// ListActive 返回所有未忽略的媒体，按创建时间倒序
	ListActive(ctx context.Context) ([]*models.Media, error)
	// ListIgnored 返回所有已忽略的媒体，按标题排序
	ListIgnored(ctx context.Context) ([]*models.Media, error)
	// ToggleIgnore 翻转忽略状态并返回更新后的条目
	ToggleIgnore(ctx context.Context, id uint) (*models.Media, error)
	// SetIgnore 设置忽略状态
	SetIgnore(ctx context.Context, id uint, ignore bool) error
	// Delete 删除媒体条目及其缓存的海报文件
	Delete(ctx context.Context, id uint) error
	// Search 按标题模糊搜索
	Search(ctx context.Context, query string) ([]*MediaSearchResult, error)
	// FieldValues 返回指定列的全部唯一值
	FieldValues(ctx context.Context, column string) ([]string, error)
}

// MediaServiceImpl 媒体服务实现
type MediaServiceImpl struct {
	db     *gorm.DB
	images *cache.ImageCache
}

// NewMediaService 创建媒体服务
func NewMediaService(db *gorm.DB, images *cache.ImageCache) *MediaServiceImpl {
	return &MediaServiceImpl{db: db, images: images}
}

// ListActive 返回所有未忽略的媒体，按创建时间倒序
func (s *MediaServiceImpl) ListActive(ctx context.Context) ([]*models.Media, error) {
	var media []*models.Media
	err := s.db.WithContext(ctx).
		Where("\"ignore\" = ?", false).
		Order("created_at DESC").
		Find(&media).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active media: %w", err)
	}
	return media, nil
}

// ListIgnored 返回所有已忽略的媒体，按标题排序
func (s *MediaServiceImpl) ListIgnored(ctx context.Context) ([]*models.Media, error) {
	var media []*models.Media
	err := s.db.WithContext(ctx).
		Where("\"ignore\" = ?", true).
		Order("title ASC").
		Find(&media).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ignored media: %w", err)
	}
	return media, nil
}

// ToggleIgnore 翻转忽略状态并返回更新后的条目
func (s *MediaServiceImpl) ToggleIgnore(ctx context.Context, id uint) (*models.Media, error) {
	var media models.Media
	if err := s.db.WithContext(ctx).First(&media, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("media %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load media %d: %w", id, err)
	}

	media.ToggleIgnore()
	if err := s.db.WithContext(ctx).Save(&media).Error; err != nil {
		return nil, fmt.Errorf("failed to update ignore status for media %d: %w", id, err)
	}
	return &media, nil
}

// SetIgnore 设置忽略状态
func (s *MediaServiceImpl) SetIgnore(ctx context.Context, id uint, ignore bool) error {
	result := s.db.WithContext(ctx).Model(&models.Media{}).
		Where("id = ?", id).
		Update("ignore", ignore)
	if result.Error != nil {
		return fmt.Errorf("failed to update ignore status for media %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("media %d: %w", id, ErrNotFound)
	}
	return nil
}

// Delete 删除媒体条目及其缓存的海报文件
// 海报清理失败不阻断删除
func (s *MediaServiceImpl) Delete(ctx context.Context, id uint) error {
	var media models.Media
	if err := s.db.WithContext(ctx).First(&media, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("media %d: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to load media %d: %w", id, err)
	}

	if err := s.db.WithContext(ctx).Delete(&media).Error; err != nil {
		return fmt.Errorf("failed to delete media %d: %w", id, err)
	}

	// poster_url是缓存内相对路径时才是本地文件，远端地址无需清理
	if media.PosterURL != "" && !strings.HasPrefix(media.PosterURL, "http") {
		if err := s.images.Delete(media.PosterURL); err != nil {
			log.Printf("Failed to delete cached poster %q for media %d: %v", media.PosterURL, id, err)
		}
	}

	log.Printf("Deleted media entry %d (%s)", id, media.Title)
	return nil
}

// Search 按标题模糊搜索，忽略大小写
func (s *MediaServiceImpl) Search(ctx context.Context, query string) ([]*MediaSearchResult, error) {
	var media []*models.Media
	err := s.db.WithContext(ctx).
		Where("LOWER(title) LIKE ?", "%"+strings.ToLower(query)+"%").
		Order("title ASC").
		Find(&media).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search media: %w", err)
	}

	results := make([]*MediaSearchResult, 0, len(media))
	for _, m := range media {
		results = append(results, &MediaSearchResult{
			Title:     m.Title,
			MediaID:   m.ID,
			TmdbID:    m.TmdbID,
			MediaType: m.MediaType,
		})
	}
	return results, nil
}

// FieldValues 返回指定列的全部唯一值
// JSON数组列和逗号分隔值会拆成单个元素
func (s *MediaServiceImpl) FieldValues(ctx context.Context, column string) ([]string, error) {
	if _, ok := mediaFieldColumns[column]; !ok {
		return nil, fmt.Errorf("invalid media column %q", column)
	}

	var raw []string
	err := s.db.WithContext(ctx).Model(&models.Media{}).
		Where(fmt.Sprintf("%s IS NOT NULL AND %s != ''", column, column)).
		Pluck(column, &raw).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read media column %s: %w", column, err)
	}

	var values []string
	for _, value := range raw {
		values = append(values, splitFieldValue(value)...)
	}
	return uniqueSorted(values), nil
}

// splitFieldValue 将存储值拆成单个元素
// networks和genres列存JSON数组，其余按逗号分隔
func splitFieldValue(value string) []string {
	if strings.HasPrefix(strings.TrimSpace(value), "[") {
		var items []string
		if err := json.Unmarshal([]byte(value), &items); err == nil {
			var cleaned []string
			for _, item := range items {
				if item = strings.TrimSpace(item); item != "" {
					cleaned = append(cleaned, item)
				}
			}
			return cleaned
		}
	}

	var parts []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
