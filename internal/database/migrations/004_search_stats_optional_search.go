package migrations

import (
	"discovarr/internal/database/migration"
)

// 统计记录不再强制关联搜索，允许记录临时运行的用量
var searchStatsOptionalSearch = &migration.Unit{
	Name: "004_search_stats_optional_search",
	Upgrade: func(m migration.Mutator) error {
		return m.DropNotNull("search_stats", "search_id")
	},
	// 存在NULL值时加回NOT NULL会失败，回滚前需要先清理数据
	Downgrade: func(m migration.Mutator) error {
		return m.AddNotNull("search_stats", "search_id")
	},
}
