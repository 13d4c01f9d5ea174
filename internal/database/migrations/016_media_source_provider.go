package migrations

import (
	"discovarr/internal/database/migration"
)

// 媒体条目记录来源提供商（jellyfin、plex或某个LLM）
var mediaSourceProvider = &migration.Unit{
	Name: "016_media_source_provider",
	Upgrade: func(m migration.Mutator) error {
		return m.AddColumn("media", "source_provider", migration.ColumnDef{Type: migration.TypeVarchar})
	},
	Downgrade: func(m migration.Mutator) error {
		return m.DropColumn("media", "source_provider")
	},
}
