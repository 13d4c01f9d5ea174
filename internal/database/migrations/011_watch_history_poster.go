package migrations

import (
	"discovarr/internal/database/migration"
)

// 观看历史记录海报地址，前端列表直接展示
var watchHistoryPoster = &migration.Unit{
	Name: "011_watch_history_poster",
	Upgrade: func(m migration.Mutator) error {
		return m.AddColumn("watch_history", "poster_url", migration.ColumnDef{Type: migration.TypeVarchar})
	},
	Downgrade: func(m migration.Mutator) error {
		return m.DropColumn("watch_history", "poster_url")
	},
}
