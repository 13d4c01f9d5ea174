package models

import (
	"time"
)

// LLMStat 一次LLM调用的token统计
// reference关联一次推荐运行的UUID，便于按运行聚合用量
type LLMStat struct {
	ID                   uint      `gorm:"primarykey" json:"id"`
	SourceProvider       string    `gorm:"not null" json:"source_provider"`
	Reference            string    `gorm:"not null;index" json:"reference"`
	PromptTokenCount     int       `gorm:"not null;default:0" json:"prompt_token_count"`
	CandidatesTokenCount int       `gorm:"not null;default:0" json:"candidates_token_count"`
	ThoughtsTokenCount   int       `gorm:"not null;default:0" json:"thoughts_token_count"`
	TotalTokenCount      int       `gorm:"not null;default:0" json:"total_token_count"`
	CreatedAt            time.Time `json:"created_at"`
}

// TableName 指定表名
func (LLMStat) TableName() string {
	return "llm_stats"
}
