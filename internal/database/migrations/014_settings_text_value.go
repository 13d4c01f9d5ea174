package migrations

import (
	"discovarr/internal/database/migration"
)

// 设置值从varchar(255)放宽为text，提示词模板超过了长度限制
var settingsTextValue = &migration.Unit{
	Name: "014_settings_text_value",
	Upgrade: func(m migration.Mutator) error {
		return m.AlterColumnType("settings", "value", migration.ColumnDef{Type: migration.TypeText})
	},
	Downgrade: func(m migration.Mutator) error {
		return m.AlterColumnType("settings", "value", migration.ColumnDef{Type: migration.TypeVarchar, Size: 255})
	},
}
