package migrations

import (
	"discovarr/internal/database/migration"
)

// 搜索增加kwargs列，JSON字符串保存运行参数
var searchKwargs = &migration.Unit{
	Name: "007_search_kwargs",
	Upgrade: func(m migration.Mutator) error {
		return m.AddColumn("searches", "kwargs", migration.ColumnDef{Type: migration.TypeVarchar})
	},
	Downgrade: func(m migration.Mutator) error {
		return m.DropColumn("searches", "kwargs")
	},
}
