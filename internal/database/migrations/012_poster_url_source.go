package migrations

import (
	"discovarr/internal/database/migration"
)

// 海报缓存落地后，media与watch_history都记录原始海报地址
var posterURLSource = &migration.Unit{
	Name: "012_poster_url_source",
	Upgrade: func(m migration.Mutator) error {
		if err := m.AddColumn("media", "poster_url_source", migration.ColumnDef{Type: migration.TypeVarchar}); err != nil {
			return err
		}
		return m.AddColumn("watch_history", "poster_url_source", migration.ColumnDef{Type: migration.TypeVarchar})
	},
	Downgrade: func(m migration.Mutator) error {
		if err := m.DropColumn("watch_history", "poster_url_source"); err != nil {
			return err
		}
		return m.DropColumn("media", "poster_url_source")
	},
}
