package migrations

import (
	"discovarr/internal/database/migration"
)

// 搜索记录最近一次执行时间，调度器据此判断是否到期
var searchLastRun = &migration.Unit{
	Name: "008_search_last_run",
	Upgrade: func(m migration.Mutator) error {
		return m.AddColumn("searches", "last_run_date", migration.ColumnDef{Type: migration.TypeDateTime})
	},
	Downgrade: func(m migration.Mutator) error {
		return m.DropColumn("searches", "last_run_date")
	},
}
