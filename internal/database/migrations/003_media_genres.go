package migrations

import (
	"discovarr/internal/database/migration"
)

// 媒体条目增加题材列表，JSON数组存为文本
var mediaGenres = &migration.Unit{
	Name: "003_media_genres",
	Upgrade: func(m migration.Mutator) error {
		return m.AddColumn("media", "genres", migration.ColumnDef{Type: migration.TypeText})
	},
	Downgrade: func(m migration.Mutator) error {
		return m.DropColumn("media", "genres")
	},
}
