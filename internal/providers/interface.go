package providers

import (
	"context"
	"time"
)

// LibraryProvider 媒体库提供商接口
// 覆盖Jellyfin、Plex、Trakt等可提供用户与观看记录的服务
type LibraryProvider interface {
	// 基础信息
	Name() string

	// 连接检查
	TestConnection(ctx context.Context) error

	// 用户操作
	GetUsers(ctx context.Context) ([]*LibraryUser, error)

	// 观看记录操作
	GetRecentlyWatched(ctx context.Context, userID string, limit int) ([]*WatchedItem, error)
	GetFavorites(ctx context.Context, userID string, limit int) ([]*WatchedItem, error)

	// 媒体库全量条目（用于提示词排除列表），不支持时返回ErrNotSupported
	GetAllItems(ctx context.Context) ([]*WatchedItem, error)
}

// LLMProvider 大模型提供商接口
// 覆盖Gemini、Ollama、OpenAI等可生成结构化推荐的服务
type LLMProvider interface {
	// 基础信息
	Name() string

	// 推荐生成
	GetSimilarMedia(ctx context.Context, req *SimilarMediaRequest) (*SimilarMediaResult, error)

	// 模型列表
	GetModels(ctx context.Context) ([]string, error)
}

// 数据结构体

// LibraryUser 媒体库用户
type LibraryUser struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Thumb          string `json:"thumb,omitempty"`
	SourceProvider string `json:"source_provider"`
}

// WatchedItem 观看条目
// 提供商返回前已按名称去重：剧集合并到所属剧，保留最近的观看时间
type WatchedItem struct {
	Name           string     `json:"name"`
	TmdbID         string     `json:"id,omitempty"`
	MediaType      string     `json:"type"` // movie或tv
	LastPlayedDate *time.Time `json:"last_played_date,omitempty"`
	PlayCount      int        `json:"play_count,omitempty"`
	IsFavorite     bool       `json:"is_favorite,omitempty"`
	PosterURL      string     `json:"poster_url,omitempty"`
	Language       string     `json:"language,omitempty"` // 提供方返回的原始语言代码，可能为空
}

// Suggestion 大模型返回的单条推荐
// 字段结构即发送给模型的JSON schema
type Suggestion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Similarity  string `json:"similarity"`
	MediaType   string `json:"mediaType"` // movie或tv
	RtURL       string `json:"rt_url"`
	RtScore     int    `json:"rt_score"`
}

// TokenUsage 一次生成调用的token用量
type TokenUsage struct {
	PromptTokens     int `json:"prompt_token_count"`
	CandidatesTokens int `json:"candidates_token_count"`
	ThoughtsTokens   int `json:"thoughts_token_count"`
	TotalTokens      int `json:"total_token_count"`
}

// SimilarMediaRequest 推荐生成请求
type SimilarMediaRequest struct {
	Model        string  `json:"model"`
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	Temperature  float64 `json:"temperature"`

	// ThinkingBudget 推理token预算，仅Gemini 2.5系列模型使用，0表示禁用
	ThinkingBudget float64 `json:"thinking_budget,omitempty"`
}

// SimilarMediaResult 推荐生成结果
type SimilarMediaResult struct {
	Suggestions []*Suggestion `json:"suggestions"`
	Usage       TokenUsage    `json:"token_counts"`
}
