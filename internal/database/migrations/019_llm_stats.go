package migrations

import (
	"time"

	"discovarr/internal/database/migration"
)

// llmStatRecord 按运行UUID聚合的LLM用量统计
type llmStatRecord struct {
	ID                   uint   `gorm:"primarykey"`
	SourceProvider       string `gorm:"not null"`
	Reference            string `gorm:"not null;index"`
	PromptTokenCount     int    `gorm:"not null;default:0"`
	CandidatesTokenCount int    `gorm:"not null;default:0"`
	ThoughtsTokenCount   int    `gorm:"not null;default:0"`
	TotalTokenCount      int    `gorm:"not null;default:0"`
	CreatedAt            time.Time
}

func (llmStatRecord) TableName() string { return "llm_stats" }

// legacySearchStat 004之后的旧统计表形态，降级时恢复
type legacySearchStat struct {
	ID                   uint  `gorm:"primarykey"`
	SearchID             *uint `gorm:"index"`
	PromptTokenCount     int   `gorm:"not null;default:0"`
	CandidatesTokenCount int   `gorm:"not null;default:0"`
	ThoughtsTokenCount   int   `gorm:"not null;default:0"`
	TotalTokenCount      int   `gorm:"not null;default:0"`
	CreatedAt            time.Time
}

func (legacySearchStat) TableName() string { return "search_stats" }

// 用量统计从按搜索关联改为按运行UUID关联，旧表废弃
var llmStats = &migration.Unit{
	Name: "019_llm_stats",
	Upgrade: func(m migration.Mutator) error {
		if err := m.DropTable("search_stats", true); err != nil {
			return err
		}
		return m.CreateTable(&llmStatRecord{})
	},
	Downgrade: func(m migration.Mutator) error {
		if err := m.DropTable("llm_stats", true); err != nil {
			return err
		}
		return m.CreateTable(&legacySearchStat{})
	},
}
