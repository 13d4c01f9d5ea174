package models

import (
	"time"
)

// 媒体条目的来源类别
const (
	EntityTypeSuggestion = "suggestion" // LLM产出的推荐
	EntityTypeLibrary    = "library"    // 媒体库同步进来的条目
)

// 媒体类型
const (
	MediaTypeMovie = "movie"
	MediaTypeTV    = "tv"
)

// Media 媒体条目模型
// 既存放LLM推荐结果，也存放从媒体库同步的已有内容，由entity_type区分
type Media struct {
	BaseModel
	Title      string `gorm:"not null" json:"title"`
	EntityType string `gorm:"not null" json:"entity_type"` // suggestion或library
	MediaType  string `gorm:"not null" json:"media_type"`  // movie或tv

	// 来源信息
	SourceProvider string `json:"source_provider"` // 产生该条目的提供商名
	SourceTitle    string `json:"source_title"`    // 触发推荐的原始媒体名
	SearchID       *uint  `gorm:"index" json:"search_id,omitempty"`

	// 推荐内容
	Description string `gorm:"type:text" json:"description"`
	Similarity  string `gorm:"type:text" json:"similarity"` // 与请求媒体的关联说明

	// 外部元数据
	TmdbID           string     `json:"tmdb_id"`
	RtURL            string     `json:"rt_url"`
	RtScore          *int       `json:"rt_score,omitempty"`
	PosterURL        string     `json:"poster_url"`
	PosterURLSource  string     `json:"poster_url_source"` // 缓存前的原始海报地址
	MediaStatus      string     `json:"media_status"`      // Rumored/Planned/In Production/Released/Canceled等
	ReleaseDate      *time.Time `gorm:"type:date" json:"release_date,omitempty"`
	Networks         string     `gorm:"type:text" json:"networks"` // JSON数组格式
	Genres           string     `gorm:"type:text" json:"genres"`   // JSON数组格式
	OriginalLanguage string     `json:"original_language"`         // BCP 47语言标签，如en、ja

	// 状态标记
	Ignore     bool `gorm:"not null;default:false" json:"ignore"`
	Favorite   bool `gorm:"not null;default:false" json:"favorite"`
	Watched    bool `gorm:"not null;default:false" json:"watched"`
	WatchCount int  `gorm:"not null;default:0" json:"watch_count"`
}

// TableName 指定表名
func (Media) TableName() string {
	return "media"
}

// ToggleIgnore 切换忽略状态
func (m *Media) ToggleIgnore() {
	m.Ignore = !m.Ignore
}
