package migrations

import (
	"discovarr/internal/database/migration"
)

// 015重建观看历史时丢掉了消费标记，推荐流程仍然依赖它，加回来
var watchHistoryReprocessed = &migration.Unit{
	Name: "018_watch_history_reprocessed",
	Upgrade: func(m migration.Mutator) error {
		if err := m.AddColumn("watch_history", "processed", migration.ColumnDef{
			Type:    migration.TypeBoolean,
			NotNull: true,
			Default: false,
		}); err != nil {
			return err
		}
		return m.AddColumn("watch_history", "processed_at", migration.ColumnDef{Type: migration.TypeDateTime})
	},
	Downgrade: func(m migration.Mutator) error {
		if err := m.DropColumn("watch_history", "processed_at"); err != nil {
			return err
		}
		return m.DropColumn("watch_history", "processed")
	},
}
