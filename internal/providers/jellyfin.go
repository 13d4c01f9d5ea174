package providers

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"
)

// JellyfinProvider Jellyfin媒体库提供商
type JellyfinProvider struct {
	*httpClient
}

// NewJellyfinProvider 创建Jellyfin提供商
func NewJellyfinProvider(serverURL, apiKey string) *JellyfinProvider {
	auth := fmt.Sprintf(`MediaBrowser Client="discovarr", Device="discovarr", DeviceId="discovarr", Version="1.0", Token=%s`, apiKey)
	return &JellyfinProvider{
		httpClient: newHTTPClient("jellyfin", serverURL, map[string]string{
			"Authorization": auth,
		}),
	}
}

// Name 返回提供商名称
func (p *JellyfinProvider) Name() string {
	return "jellyfin"
}

// TestConnection 测试服务器连通性与API key有效性
func (p *JellyfinProvider) TestConnection(ctx context.Context) error {
	return p.getJSON(ctx, "/System/Info", nil, nil)
}

// jellyfinUser /Users响应中的用户
type jellyfinUser struct {
	ID              string `json:"Id"`
	Name            string `json:"Name"`
	PrimaryImageTag string `json:"PrimaryImageTag"`
}

// jellyfinUserData 条目上的用户观看数据
type jellyfinUserData struct {
	LastPlayedDate string `json:"LastPlayedDate"`
	PlayCount      int    `json:"PlayCount"`
	IsFavorite     bool   `json:"IsFavorite"`
}

// jellyfinItem /Items响应中的媒体条目
type jellyfinItem struct {
	ID          string            `json:"Id"`
	Name        string            `json:"Name"`
	Type        string            `json:"Type"` // Movie、Series或Episode
	SeriesName  string            `json:"SeriesName"`
	SeriesID    string            `json:"SeriesId"`
	ProviderIDs map[string]string `json:"ProviderIds"`
	UserData    *jellyfinUserData `json:"UserData"`
}

// jellyfinItemsPage /Items响应分页
type jellyfinItemsPage struct {
	Items []*jellyfinItem `json:"Items"`
}

// GetUsers 获取全部用户
func (p *JellyfinProvider) GetUsers(ctx context.Context) ([]*LibraryUser, error) {
	var raw []*jellyfinUser
	if err := p.getJSON(ctx, "/Users", nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch jellyfin users: %w", err)
	}

	users := make([]*LibraryUser, 0, len(raw))
	for _, u := range raw {
		if u.ID == "" {
			continue
		}
		thumb := ""
		if u.PrimaryImageTag != "" {
			thumb = p.endpoint("/Users/"+u.ID+"/Images/Primary", url.Values{"tag": {u.PrimaryImageTag}})
		}
		users = append(users, &LibraryUser{
			ID:             u.ID,
			Name:           u.Name,
			Thumb:          thumb,
			SourceProvider: p.Name(),
		})
	}
	return users, nil
}

// GetRecentlyWatched 获取用户最近观看的条目，按播放时间倒序
func (p *JellyfinProvider) GetRecentlyWatched(ctx context.Context, userID string, limit int) ([]*WatchedItem, error) {
	if userID == "" {
		return nil, newConfigError(p.Name(), "jellyfin user id is required")
	}

	query := url.Values{
		"Recursive":        {"true"},
		"Fields":           {"ProviderIds"},
		"IncludeItemTypes": {"Movie,Episode"},
		"SortBy":           {"DatePlayed"},
		"SortOrder":        {"Descending"},
		"IsPlayed":         {"true"},
		"enableUserData":   {"true"},
	}
	if limit > 0 {
		query.Set("Limit", strconv.Itoa(limit))
	}

	var page jellyfinItemsPage
	if err := p.getJSON(ctx, "/Users/"+userID+"/Items", query, &page); err != nil {
		return nil, fmt.Errorf("failed to fetch jellyfin watch history: %w", err)
	}
	return p.filterItems(ctx, page.Items, userID), nil
}

// GetFavorites 获取用户收藏的条目
func (p *JellyfinProvider) GetFavorites(ctx context.Context, userID string, limit int) ([]*WatchedItem, error) {
	if userID == "" {
		return nil, newConfigError(p.Name(), "jellyfin user id is required")
	}

	query := url.Values{
		"Recursive":        {"true"},
		"Fields":           {"ProviderIds"},
		"IncludeItemTypes": {"Movie,Series"},
		"IsFavorite":       {"true"},
		"SortBy":           {"SortName"},
		"SortOrder":        {"Ascending"},
		"enableUserData":   {"true"},
	}
	if limit > 0 {
		query.Set("Limit", strconv.Itoa(limit))
	}

	var page jellyfinItemsPage
	if err := p.getJSON(ctx, "/Users/"+userID+"/Items", query, &page); err != nil {
		return nil, fmt.Errorf("failed to fetch jellyfin favorites: %w", err)
	}
	return p.filterItems(ctx, page.Items, userID), nil
}

// GetAllItems 获取媒体库中全部电影和剧集
func (p *JellyfinProvider) GetAllItems(ctx context.Context) ([]*WatchedItem, error) {
	query := url.Values{
		"Recursive":        {"true"},
		"IncludeItemTypes": {"Movie,Series"},
	}

	var page jellyfinItemsPage
	if err := p.getJSON(ctx, "/Items", query, &page); err != nil {
		return nil, fmt.Errorf("failed to fetch jellyfin library items: %w", err)
	}
	return p.filterItems(ctx, page.Items, ""), nil
}

// filterItems 转换原始条目并按名称去重
// 剧集合并到所属剧，重复条目保留最近的观看时间
func (p *JellyfinProvider) filterItems(ctx context.Context, items []*jellyfinItem, userID string) []*WatchedItem {
	seen := make(map[string]*WatchedItem)
	order := make([]string, 0, len(items))
	idCache := make(map[string]string)

	for _, item := range items {
		var name, itemID, mediaType string
		switch item.Type {
		case "Episode":
			name, itemID, mediaType = item.SeriesName, item.SeriesID, "tv"
		case "Series":
			name, itemID, mediaType = item.Name, item.ID, "tv"
		case "Movie":
			name, itemID, mediaType = item.Name, item.ID, "movie"
		default:
			continue
		}
		if name == "" {
			continue
		}

		var lastPlayed *time.Time
		playCount := 0
		favorite := false
		if item.UserData != nil {
			if t, err := time.Parse(time.RFC3339Nano, item.UserData.LastPlayedDate); err == nil {
				lastPlayed = &t
			}
			playCount = item.UserData.PlayCount
			favorite = item.UserData.IsFavorite
		}

		if existing, ok := seen[name]; ok {
			if lastPlayed != nil && (existing.LastPlayedDate == nil || lastPlayed.After(*existing.LastPlayedDate)) {
				existing.LastPlayedDate = lastPlayed
			}
			continue
		}

		tmdbID := item.ProviderIDs["Tmdb"]
		if tmdbID == "" && userID != "" && itemID != "" {
			if cached, ok := idCache[itemID]; ok {
				tmdbID = cached
			} else {
				tmdbID = p.lookupTmdbID(ctx, userID, itemID)
				idCache[itemID] = tmdbID
			}
		}

		seen[name] = &WatchedItem{
			Name:           name,
			TmdbID:         tmdbID,
			MediaType:      mediaType,
			LastPlayedDate: lastPlayed,
			PlayCount:      playCount,
			IsFavorite:     favorite,
			PosterURL:      p.baseURL + "/Items/" + itemID + "/Images/Primary?fillHeight=1440&fillWidth=960&quality=96",
		}
		order = append(order, name)
	}

	result := make([]*WatchedItem, 0, len(order))
	for _, name := range order {
		result = append(result, seen[name])
	}
	return result
}

// lookupTmdbID 单条目查询外部ID，列表响应缺少ProviderIds时兜底
func (p *JellyfinProvider) lookupTmdbID(ctx context.Context, userID, itemID string) string {
	var item jellyfinItem
	query := url.Values{"Fields": {"ProviderIds"}}
	if err := p.getJSON(ctx, "/Users/"+userID+"/Items/"+itemID, query, &item); err != nil {
		log.Printf("jellyfin: failed to fetch external ids for item %s: %v", itemID, err)
		return ""
	}
	return item.ProviderIDs["Tmdb"]
}
