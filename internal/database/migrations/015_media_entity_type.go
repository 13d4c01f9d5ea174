package migrations

import (
	"time"

	"discovarr/internal/database/migration"
)

// slimWatchHistory 本版本重建后的观看历史：
// 媒体库条目入库media表之后，历史记录改为引用media主键，
// 标题、海报等冗余列随旧表一起废弃
type slimWatchHistory struct {
	ID             uint      `gorm:"primarykey"`
	MediaID        uint      `gorm:"not null;index"`
	WatchedBy      string    `gorm:"not null"`
	LastPlayedDate time.Time `gorm:"not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (slimWatchHistory) TableName() string { return "watch_history" }

// legacyWatchHistory 重建前的完整旧表形态，降级时按此恢复
type legacyWatchHistory struct {
	ID              uint   `gorm:"primarykey"`
	Title           string `gorm:"not null"`
	MediaType       string
	WatchedBy       string    `gorm:"not null"`
	LastPlayedDate  time.Time `gorm:"not null"`
	Processed       bool      `gorm:"not null;default:false"`
	ProcessedAt     *time.Time
	MediaID         string
	PosterURL       string
	PosterURLSource string
	Source          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (legacyWatchHistory) TableName() string { return "watch_history" }

// 媒体条目引入entity_type区分推荐与库内内容，并携带观看统计。
// 已有行全部是LLM推荐，回填为suggestion后才能加NOT NULL约束。
// 观看历史的列形态变化过大，直接整表重建，旧数据不保留。
var mediaEntityType = &migration.Unit{
	Name: "015_media_entity_type",
	Upgrade: func(m migration.Mutator) error {
		if err := m.AddColumn("media", "entity_type", migration.ColumnDef{Type: migration.TypeVarchar}); err != nil {
			return err
		}
		if err := m.AddColumn("media", "watched", migration.ColumnDef{
			Type:    migration.TypeBoolean,
			NotNull: true,
			Default: false,
		}); err != nil {
			return err
		}
		if err := m.AddColumn("media", "watch_count", migration.ColumnDef{
			Type:    migration.TypeInteger,
			NotNull: true,
			Default: 0,
		}); err != nil {
			return err
		}

		// 回填必须发生在加NOT NULL之前
		if err := m.UpdateRows("media", map[string]interface{}{"entity_type": "suggestion"}); err != nil {
			return err
		}
		if err := m.AddNotNull("media", "entity_type"); err != nil {
			return err
		}

		if err := m.DropTable("watch_history", true); err != nil {
			return err
		}
		return m.CreateTable(&slimWatchHistory{})
	},
	Downgrade: func(m migration.Mutator) error {
		if err := m.DropNotNull("media", "entity_type"); err != nil {
			return err
		}
		if err := m.DropColumn("media", "entity_type"); err != nil {
			return err
		}
		if err := m.DropColumn("media", "watched"); err != nil {
			return err
		}
		if err := m.DropColumn("media", "watch_count"); err != nil {
			return err
		}

		if err := m.DropTable("watch_history", true); err != nil {
			return err
		}
		return m.CreateTable(&legacyWatchHistory{})
	},
}
