package migrations

import (
	"discovarr/internal/database/migration"
)

// 观看历史记录外部媒体ID（当时还是TMDB的字符串ID）
var watchHistoryMediaID = &migration.Unit{
	Name: "010_watch_history_media_id",
	Upgrade: func(m migration.Mutator) error {
		return m.AddColumn("watch_history", "media_id", migration.ColumnDef{Type: migration.TypeVarchar})
	},
	Downgrade: func(m migration.Mutator) error {
		return m.DropColumn("watch_history", "media_id")
	},
}
