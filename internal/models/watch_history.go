package models

import (
	"time"
)

// WatchHistory 观看历史模型
// 每条记录对应某个用户对某个媒体条目的最近一次播放，
// processed标记该记录是否已被推荐流程消费过
type WatchHistory struct {
	BaseModel
	MediaID        uint       `gorm:"not null;index" json:"media_id"`
	WatchedBy      string     `gorm:"not null" json:"watched_by"`
	LastPlayedDate time.Time  `gorm:"not null" json:"last_played_date"`
	Processed      bool       `gorm:"not null;default:false" json:"processed"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`

	Media *Media `gorm:"foreignKey:MediaID" json:"media,omitempty"`
}

// TableName 指定表名
func (WatchHistory) TableName() string {
	return "watch_history"
}

// MarkProcessed 标记该记录已被推荐流程消费
func (w *WatchHistory) MarkProcessed() {
	now := time.Now()
	w.Processed = true
	w.ProcessedAt = &now
}
