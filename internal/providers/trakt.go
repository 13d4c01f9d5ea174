package providers

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const traktBaseURL = "https://api.trakt.tv"

// TraktTokenCallback token获取或刷新后的持久化回调
type TraktTokenCallback func(token *oauth2.Token) error

// TraktProvider Trakt媒体库提供商
// 使用OAuth2设备授权流认证，token刷新后通过回调写回设置
type TraktProvider struct {
	*httpClient
	oauthConfig *oauth2.Config
	token       *oauth2.Token
	onToken     TraktTokenCallback
	mutex       sync.Mutex
}

// NewTraktProvider 创建Trakt提供商
// token可为nil，此时需要先走StartDeviceAuth/WaitForDeviceToken完成授权
func NewTraktProvider(clientID, clientSecret string, token *oauth2.Token) *TraktProvider {
	return &TraktProvider{
		httpClient: newHTTPClient("trakt", traktBaseURL, map[string]string{
			"trakt-api-version": "2",
			"trakt-api-key":     clientID,
		}),
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:       traktBaseURL + "/oauth/authorize",
				TokenURL:      traktBaseURL + "/oauth/token",
				DeviceAuthURL: traktBaseURL + "/oauth/device/code",
			},
		},
		token: token,
	}
}

// Name 返回提供商名称
func (p *TraktProvider) Name() string {
	return "trakt"
}

// SetTokenCallback 设置token持久化回调
func (p *TraktProvider) SetTokenCallback(callback TraktTokenCallback) {
	p.onToken = callback
}

// StartDeviceAuth 发起设备授权流
// 返回用户需要在verification页面输入的code；之后调用WaitForDeviceToken等待授权完成
func (p *TraktProvider) StartDeviceAuth(ctx context.Context) (*oauth2.DeviceAuthResponse, error) {
	resp, err := p.oauthConfig.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start trakt device auth: %w", err)
	}
	log.Printf("To authenticate trakt, enter code %q at %s", resp.UserCode, resp.VerificationURI)
	return resp, nil
}

// WaitForDeviceToken 轮询等待用户完成设备授权
// 阻塞到授权完成、过期或ctx取消
func (p *TraktProvider) WaitForDeviceToken(ctx context.Context, auth *oauth2.DeviceAuthResponse) error {
	token, err := p.oauthConfig.DeviceAccessToken(ctx, auth)
	if err != nil {
		return fmt.Errorf("trakt device authorization failed: %w", err)
	}
	p.storeToken(token)
	log.Println("Trakt authentication successful")
	return nil
}

// IsAuthenticated 是否已有授权token
func (p *TraktProvider) IsAuthenticated() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.token != nil && p.token.AccessToken != ""
}

// storeToken 保存token、更新请求头并触发持久化回调
func (p *TraktProvider) storeToken(token *oauth2.Token) {
	p.mutex.Lock()
	p.token = token
	p.setHeader("Authorization", "Bearer "+token.AccessToken)
	p.mutex.Unlock()

	if p.onToken != nil {
		if err := p.onToken(token); err != nil {
			log.Printf("Warning: failed to persist trakt token: %v", err)
		}
	}
}

// authorize 确保token有效，过期时自动刷新
func (p *TraktProvider) authorize(ctx context.Context) error {
	p.mutex.Lock()
	token := p.token
	p.mutex.Unlock()

	if token == nil || token.AccessToken == "" {
		return &ProviderError{
			Type:      ErrorTypeOAuth2,
			Code:      "OAUTH2",
			Message:   "trakt is not authenticated, run device authorization first",
			Provider:  p.Name(),
			Retryable: false,
			Timestamp: time.Now(),
		}
	}

	fresh, err := p.oauthConfig.TokenSource(ctx, token).Token()
	if err != nil {
		return &ProviderError{
			Type:      ErrorTypeOAuth2,
			Code:      "OAUTH2",
			Message:   fmt.Sprintf("failed to refresh trakt token: %v", err),
			Provider:  p.Name(),
			Retryable: false,
			Cause:     err,
			Timestamp: time.Now(),
		}
	}

	if fresh.AccessToken != token.AccessToken {
		log.Println("Trakt token refreshed")
		p.storeToken(fresh)
	} else {
		p.mutex.Lock()
		p.setHeader("Authorization", "Bearer "+fresh.AccessToken)
		p.mutex.Unlock()
	}
	return nil
}

// traktIDs 条目的外部ID集合
type traktIDs struct {
	Slug string `json:"slug"`
	Tmdb int64  `json:"tmdb"`
}

// traktMedia 电影或剧集
// extended=full时带language字段
type traktMedia struct {
	Title    string   `json:"title"`
	Language string   `json:"language"`
	IDs      traktIDs `json:"ids"`
}

// traktHistoryItem 观看历史条目，每次播放一行
type traktHistoryItem struct {
	Type      string      `json:"type"` // movie或episode
	WatchedAt time.Time   `json:"watched_at"`
	Movie     *traktMedia `json:"movie"`
	Show      *traktMedia `json:"show"`
}

// traktRatingItem 评分条目
type traktRatingItem struct {
	Rating  int         `json:"rating"`
	RatedAt time.Time   `json:"rated_at"`
	Type    string      `json:"type"` // movie、show、season或episode
	Movie   *traktMedia `json:"movie"`
	Show    *traktMedia `json:"show"`
}

// traktUserSettings /users/settings响应
type traktUserSettings struct {
	User struct {
		Username string   `json:"username"`
		IDs      traktIDs `json:"ids"`
		Images   struct {
			Avatar struct {
				Full string `json:"full"`
			} `json:"avatar"`
		} `json:"images"`
	} `json:"user"`
}

// TestConnection 测试token有效性
func (p *TraktProvider) TestConnection(ctx context.Context) error {
	if err := p.authorize(ctx); err != nil {
		return err
	}
	var settings traktUserSettings
	return p.getJSON(ctx, "/users/settings", nil, &settings)
}

// GetUsers 返回已授权的Trakt用户
// Trakt在此场景下是单用户的：即token所属账户
func (p *TraktProvider) GetUsers(ctx context.Context) ([]*LibraryUser, error) {
	if err := p.authorize(ctx); err != nil {
		return nil, err
	}

	var settings traktUserSettings
	if err := p.getJSON(ctx, "/users/settings", nil, &settings); err != nil {
		return nil, fmt.Errorf("failed to fetch trakt user settings: %w", err)
	}
	if settings.User.Username == "" {
		return nil, nil
	}

	return []*LibraryUser{{
		ID:             settings.User.IDs.Slug,
		Name:           settings.User.Username,
		Thumb:          settings.User.Images.Avatar.Full,
		SourceProvider: p.Name(),
	}}, nil
}

// GetRecentlyWatched 获取用户观看历史
// 历史记录每次播放一行，合并时按名称累计播放次数并保留最近观看时间
func (p *TraktProvider) GetRecentlyWatched(ctx context.Context, userID string, limit int) ([]*WatchedItem, error) {
	if err := p.authorize(ctx); err != nil {
		return nil, err
	}
	if userID == "" {
		userID = "me"
	}

	query := url.Values{"extended": {"full"}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var items []*traktHistoryItem
	if err := p.getJSON(ctx, "/users/"+userID+"/history", query, &items); err != nil {
		return nil, fmt.Errorf("failed to fetch trakt watch history: %w", err)
	}

	seen := make(map[string]*WatchedItem)
	order := make([]string, 0, len(items))
	for _, item := range items {
		name, tmdbID, mediaType, language := traktIdentity(item.Type, item.Movie, item.Show)
		if name == "" {
			continue
		}

		watchedAt := item.WatchedAt
		if existing, ok := seen[name]; ok {
			existing.PlayCount++
			if !watchedAt.IsZero() && (existing.LastPlayedDate == nil || watchedAt.After(*existing.LastPlayedDate)) {
				t := watchedAt
				existing.LastPlayedDate = &t
			}
			continue
		}

		entry := &WatchedItem{
			Name:      name,
			TmdbID:    tmdbID,
			MediaType: mediaType,
			PlayCount: 1,
			Language:  language,
		}
		if !watchedAt.IsZero() {
			t := watchedAt
			entry.LastPlayedDate = &t
		}
		seen[name] = entry
		order = append(order, name)
	}

	result := make([]*WatchedItem, 0, len(order))
	for _, name := range order {
		result = append(result, seen[name])
	}
	return result, nil
}

// GetFavorites 获取评分8分及以上的条目作为收藏
func (p *TraktProvider) GetFavorites(ctx context.Context, userID string, limit int) ([]*WatchedItem, error) {
	if err := p.authorize(ctx); err != nil {
		return nil, err
	}
	if userID == "" {
		userID = "me"
	}

	query := url.Values{"extended": {"full"}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var items []*traktRatingItem
	if err := p.getJSON(ctx, "/users/"+userID+"/ratings", query, &items); err != nil {
		return nil, fmt.Errorf("failed to fetch trakt ratings: %w", err)
	}

	var result []*WatchedItem
	for _, item := range items {
		if item.Rating < 8 {
			continue
		}
		name, tmdbID, mediaType, language := traktIdentity(item.Type, item.Movie, item.Show)
		if name == "" {
			continue
		}
		result = append(result, &WatchedItem{
			Name:       name,
			TmdbID:     tmdbID,
			MediaType:  mediaType,
			IsFavorite: true,
			Language:   language,
		})
	}
	return result, nil
}

// GetAllItems Trakt不是媒体库，无全量条目概念
func (p *TraktProvider) GetAllItems(ctx context.Context) ([]*WatchedItem, error) {
	return nil, ErrNotSupported
}

// traktIdentity 从条目类型解析名称、TMDB ID、媒体类型与语言
// 剧集归并到所属剧
func traktIdentity(itemType string, movie, show *traktMedia) (name, tmdbID, mediaType, language string) {
	switch itemType {
	case "movie":
		if movie == nil {
			return "", "", "", ""
		}
		return movie.Title, formatTmdbID(movie.IDs.Tmdb), "movie", movie.Language
	case "episode", "show", "season":
		if show == nil {
			return "", "", "", ""
		}
		return show.Title, formatTmdbID(show.IDs.Tmdb), "tv", show.Language
	}
	return "", "", "", ""
}

// formatTmdbID TMDB ID为0表示缺失
func formatTmdbID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
