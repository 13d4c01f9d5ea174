package migrations

import (
	"discovarr/internal/database/migration"
)

// 观看历史记录来源提供商，手工录入与Jellyfin/Plex同步的记录可区分
var watchHistorySource = &migration.Unit{
	Name: "013_watch_history_source",
	Upgrade: func(m migration.Mutator) error {
		return m.AddColumn("watch_history", "source", migration.ColumnDef{Type: migration.TypeVarchar})
	},
	Downgrade: func(m migration.Mutator) error {
		return m.DropColumn("watch_history", "source")
	},
}
