package providers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// PlexProvider Plex媒体库提供商
// 通过X-Plex-Token认证，Accept: application/json获取JSON响应
type PlexProvider struct {
	*httpClient
	token string
}

// NewPlexProvider 创建Plex提供商
func NewPlexProvider(serverURL, token string) *PlexProvider {
	return &PlexProvider{
		httpClient: newHTTPClient("plex", serverURL, map[string]string{
			"X-Plex-Token": token,
		}),
		token: token,
	}
}

// Name 返回提供商名称
func (p *PlexProvider) Name() string {
	return "plex"
}

// plexGuid 外部ID条目，形如tmdb://603
type plexGuid struct {
	ID string `json:"id"`
}

// plexAccount /accounts响应中的账户
type plexAccount struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Thumb string `json:"thumb"`
}

// plexDirectory 媒体库分区
type plexDirectory struct {
	Key  string `json:"key"`
	Type string `json:"type"` // movie或show
}

// plexMetadata 媒体条目（历史记录或库条目）
type plexMetadata struct {
	RatingKey            string     `json:"ratingKey"`
	Type                 string     `json:"type"` // movie、show或episode
	Title                string     `json:"title"`
	GrandparentTitle     string     `json:"grandparentTitle"`
	GrandparentRatingKey string     `json:"grandparentRatingKey"`
	Thumb                string     `json:"thumb"`
	GrandparentThumb     string     `json:"grandparentThumb"`
	ViewedAt             int64      `json:"viewedAt"`
	LastViewedAt         int64      `json:"lastViewedAt"`
	ViewCount            int        `json:"viewCount"`
	UserRating           float64    `json:"userRating"`
	Guids                []plexGuid `json:"Guid"`
}

// plexContainer Plex响应的统一外层
type plexContainer struct {
	MediaContainer struct {
		FriendlyName string           `json:"friendlyName"`
		Version      string           `json:"version"`
		Account      []*plexAccount   `json:"Account"`
		Directory    []*plexDirectory `json:"Directory"`
		Metadata     []*plexMetadata  `json:"Metadata"`
	} `json:"MediaContainer"`
}

// TestConnection 测试服务器连通性与token有效性
func (p *PlexProvider) TestConnection(ctx context.Context) error {
	var root plexContainer
	return p.getJSON(ctx, "/", nil, &root)
}

// GetUsers 获取服务器上的全部账户
func (p *PlexProvider) GetUsers(ctx context.Context) ([]*LibraryUser, error) {
	var container plexContainer
	if err := p.getJSON(ctx, "/accounts", nil, &container); err != nil {
		return nil, fmt.Errorf("failed to fetch plex accounts: %w", err)
	}

	users := make([]*LibraryUser, 0, len(container.MediaContainer.Account))
	for _, acc := range container.MediaContainer.Account {
		// 账户0是全部用户的聚合账户
		if acc.ID == 0 {
			continue
		}
		users = append(users, &LibraryUser{
			ID:             strconv.Itoa(acc.ID),
			Name:           acc.Name,
			Thumb:          acc.Thumb,
			SourceProvider: p.Name(),
		})
	}
	return users, nil
}

// GetRecentlyWatched 获取账户的观看历史，按观看时间倒序
func (p *PlexProvider) GetRecentlyWatched(ctx context.Context, userID string, limit int) ([]*WatchedItem, error) {
	if userID == "" {
		return nil, newConfigError(p.Name(), "plex account id is required")
	}
	if _, err := strconv.Atoi(userID); err != nil {
		return nil, newConfigError(p.Name(), fmt.Sprintf("invalid plex account id %q", userID))
	}

	query := url.Values{
		"accountID": {userID},
		"sort":      {"viewedAt:desc"},
	}
	if limit > 0 {
		query.Set("X-Plex-Container-Start", "0")
		query.Set("X-Plex-Container-Size", strconv.Itoa(limit))
	}

	var container plexContainer
	if err := p.getJSON(ctx, "/status/sessions/history/all", query, &container); err != nil {
		return nil, fmt.Errorf("failed to fetch plex watch history: %w", err)
	}
	return p.filterItems(container.MediaContainer.Metadata), nil
}

// GetFavorites 获取评分9分及以上的条目作为收藏
// Plex没有原生收藏，沿用高分即收藏的约定；评分绑定token所属账户
func (p *PlexProvider) GetFavorites(ctx context.Context, userID string, limit int) ([]*WatchedItem, error) {
	sections, err := p.librarySections(ctx)
	if err != nil {
		return nil, err
	}

	var rated []*plexMetadata
	for _, section := range sections {
		items, err := p.sectionItems(ctx, section.Key)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if item.UserRating >= 9.0 {
				rated = append(rated, item)
				if limit > 0 && len(rated) >= limit {
					break
				}
			}
		}
		if limit > 0 && len(rated) >= limit {
			break
		}
	}

	result := p.filterItems(rated)
	for _, item := range result {
		item.IsFavorite = true
	}
	return result, nil
}

// GetAllItems 获取全部电影和剧集分区下的条目
func (p *PlexProvider) GetAllItems(ctx context.Context) ([]*WatchedItem, error) {
	sections, err := p.librarySections(ctx)
	if err != nil {
		return nil, err
	}

	var all []*plexMetadata
	for _, section := range sections {
		items, err := p.sectionItems(ctx, section.Key)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	return p.filterItems(all), nil
}

// librarySections 获取电影和剧集类型的媒体库分区
func (p *PlexProvider) librarySections(ctx context.Context) ([]*plexDirectory, error) {
	var container plexContainer
	if err := p.getJSON(ctx, "/library/sections", nil, &container); err != nil {
		return nil, fmt.Errorf("failed to fetch plex library sections: %w", err)
	}

	var sections []*plexDirectory
	for _, dir := range container.MediaContainer.Directory {
		if dir.Type == "movie" || dir.Type == "show" {
			sections = append(sections, dir)
		}
	}
	return sections, nil
}

// sectionItems 获取单个分区的全部条目
func (p *PlexProvider) sectionItems(ctx context.Context, key string) ([]*plexMetadata, error) {
	query := url.Values{"includeGuids": {"1"}}
	var container plexContainer
	if err := p.getJSON(ctx, "/library/sections/"+key+"/all", query, &container); err != nil {
		return nil, fmt.Errorf("failed to fetch plex section %s: %w", key, err)
	}
	return container.MediaContainer.Metadata, nil
}

// filterItems 转换原始条目并按名称去重，保留最近观看时间
func (p *PlexProvider) filterItems(items []*plexMetadata) []*WatchedItem {
	seen := make(map[string]*WatchedItem)
	order := make([]string, 0, len(items))

	for _, item := range items {
		var name, thumb string
		var mediaType string
		switch item.Type {
		case "episode":
			name, thumb, mediaType = item.GrandparentTitle, item.GrandparentThumb, "tv"
		case "show":
			name, thumb, mediaType = item.Title, item.Thumb, "tv"
		case "movie":
			name, thumb, mediaType = item.Title, item.Thumb, "movie"
		default:
			continue
		}
		if name == "" {
			continue
		}

		var lastPlayed *time.Time
		epoch := item.ViewedAt
		if epoch == 0 {
			epoch = item.LastViewedAt
		}
		if epoch > 0 {
			t := time.Unix(epoch, 0).UTC()
			lastPlayed = &t
		}

		if existing, ok := seen[name]; ok {
			if lastPlayed != nil && (existing.LastPlayedDate == nil || lastPlayed.After(*existing.LastPlayedDate)) {
				existing.LastPlayedDate = lastPlayed
			}
			continue
		}

		posterURL := ""
		if thumb != "" {
			posterURL = p.baseURL + thumb + "?X-Plex-Token=" + p.token
		}

		seen[name] = &WatchedItem{
			Name:           name,
			TmdbID:         tmdbIDFromGuids(item.Guids),
			MediaType:      mediaType,
			LastPlayedDate: lastPlayed,
			PlayCount:      item.ViewCount,
			IsFavorite:     item.UserRating >= 9.0,
			PosterURL:      posterURL,
		}
		order = append(order, name)
	}

	result := make([]*WatchedItem, 0, len(order))
	for _, name := range order {
		result = append(result, seen[name])
	}
	return result
}

// tmdbIDFromGuids 从Guid列表中提取tmdb://形式的ID
func tmdbIDFromGuids(guids []plexGuid) string {
	for _, g := range guids {
		if id, ok := strings.CutPrefix(g.ID, "tmdb://"); ok {
			return id
		}
	}
	return ""
}
