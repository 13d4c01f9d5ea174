package migrations

import (
	"discovarr/internal/database/migration"
)

// 观看历史增加消费标记，推荐流程处理过的记录不再重复参与
var watchHistoryProcessed = &migration.Unit{
	Name: "009_watch_history_processed",
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
