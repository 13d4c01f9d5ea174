package migrations

import (
	"discovarr/internal/database/migration"
)

// 媒体条目支持收藏
var mediaFavorite = &migration.Unit{
	Name: "017_media_favorite",
	Upgrade: func(m migration.Mutator) error {
		return m.AddColumn("media", "favorite", migration.ColumnDef{
			Type:    migration.TypeBoolean,
			NotNull: true,
			Default: false,
		})
	},
	Downgrade: func(m migration.Mutator) error {
		return m.DropColumn("media", "favorite")
	},
}
