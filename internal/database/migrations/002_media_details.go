package migrations

import (
	"discovarr/internal/database/migration"
)

// 媒体条目补充TMDB元数据字段
var mediaDetails = &migration.Unit{
	Name: "002_media_details",
	Upgrade: func(m migration.Mutator) error {
		if err := m.AddColumn("media", "media_status", migration.ColumnDef{Type: migration.TypeVarchar}); err != nil {
			return err
		}
		if err := m.AddColumn("media", "release_date", migration.ColumnDef{Type: migration.TypeDate}); err != nil {
			return err
		}
		if err := m.AddColumn("media", "networks", migration.ColumnDef{Type: migration.TypeText}); err != nil {
			return err
		}
		return m.AddColumn("media", "original_language", migration.ColumnDef{Type: migration.TypeVarchar})
	},
	Downgrade: func(m migration.Mutator) error {
		if err := m.DropColumn("media", "original_language"); err != nil {
			return err
		}
		if err := m.DropColumn("media", "networks"); err != nil {
			return err
		}
		if err := m.DropColumn("media", "release_date"); err != nil {
			return err
		}
		return m.DropColumn("media", "media_status")
	},
}
