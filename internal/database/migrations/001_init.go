package migrations

import (
	"time"

	"discovarr/internal/database/migration"
)

// 首个版本的基础表结构快照
// 迁移单元内的模型与internal/models解耦：表的最终形态
// 由整条迁移链从空库重放决定，这里只描述版本1时的样子

type initMedia struct {
	ID          uint   `gorm:"primarykey"`
	Title       string `gorm:"not null"`
	MediaType   string `gorm:"not null"`
	SourceTitle string
	Description string `gorm:"type:text"`
	Similarity  string `gorm:"type:text"`
	TmdbID      string
	RtURL       string
	RtScore     *int
	PosterURL   string
	Ignore      bool  `gorm:"not null;default:false"`
	SearchID    *uint `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (initMedia) TableName() string { return "media" }

type initSearch struct {
	ID        uint   `gorm:"primarykey"`
	Name      string `gorm:"not null"`
	Query     string `gorm:"column:query;not null;type:text"`
	CreatedAt time.Time
}

func (initSearch) TableName() string { return "searches" }

type initSearchStat struct {
	ID                   uint `gorm:"primarykey"`
	SearchID             uint `gorm:"not null;index"`
	PromptTokenCount     int  `gorm:"not null;default:0"`
	CandidatesTokenCount int  `gorm:"not null;default:0"`
	ThoughtsTokenCount   int  `gorm:"not null;default:0"`
	TotalTokenCount      int  `gorm:"not null;default:0"`
	CreatedAt            time.Time
}

func (initSearchStat) TableName() string { return "search_stats" }

type initWatchHistory struct {
	ID             uint   `gorm:"primarykey"`
	Title          string `gorm:"not null"`
	MediaType      string
	WatchedBy      string    `gorm:"not null"`
	LastPlayedDate time.Time `gorm:"not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (initWatchHistory) TableName() string { return "watch_history" }

type initSetting struct {
	ID          uint   `gorm:"primarykey"`
	Group       string `gorm:"column:group;not null;size:255;uniqueIndex:idx_settings_group_name"`
	Name        string `gorm:"not null;size:255;uniqueIndex:idx_settings_group_name"`
	Value       string `gorm:"size:255"`
	Type        string
	Description string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (initSetting) TableName() string { return "settings" }

type initSchedule struct {
	ID        uint   `gorm:"primarykey"`
	SearchID  *uint  `gorm:"index"`
	JobID     string `gorm:"not null;uniqueIndex"`
	FuncName  string `gorm:"not null"`
	Year      string
	Month     string
	Hour      *int
	Minute    *int
	Day       string
	DayOfWeek string
	Args      string
	Kwargs    string
	Enabled   bool `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (initSchedule) TableName() string { return "schedules" }

var initSchema = &migration.Unit{
	Name: "001_init",
	Upgrade: func(m migration.Mutator) error {
		if err := m.CreateTable(&initMedia{}); err != nil {
			return err
		}
		if err := m.CreateTable(&initSearch{}); err != nil {
			return err
		}
		if err := m.CreateTable(&initSearchStat{}); err != nil {
			return err
		}
		if err := m.CreateTable(&initWatchHistory{}); err != nil {
			return err
		}
		if err := m.CreateTable(&initSetting{}); err != nil {
			return err
		}
		return m.CreateTable(&initSchedule{})
	},
	Downgrade: func(m migration.Mutator) error {
		if err := m.DropTable("schedules", true); err != nil {
			return err
		}
		if err := m.DropTable("settings", true); err != nil {
			return err
		}
		if err := m.DropTable("watch_history", true); err != nil {
			return err
		}
		if err := m.DropTable("search_stats", true); err != nil {
			return err
		}
		if err := m.DropTable("searches", true); err != nil {
			return err
		}
		return m.DropTable("media", true)
	},
}
