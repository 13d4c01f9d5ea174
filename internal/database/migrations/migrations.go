// Package migrations 是编译期注册的迁移链
// 每个单元一个文件，文件名与单元名一致，数字前缀即版本号。
// 版本5在一次没有发布的变更中被废弃，编号保留空洞，
// Runner按版本排序执行，不要求连续。
package migrations

import (
	"discovarr/internal/database/migration"
)

// All 返回全部迁移单元
// 新增迁移时在这里登记，版本号重复或缺失数字前缀会在启动时被发现阶段拒绝
func All() []*migration.Unit {
	return []*migration.Unit{
		initSchema,
		mediaDetails,
		mediaGenres,
		searchStatsOptionalSearch,
		searchPrompt,
		searchKwargs,
		searchLastRun,
		watchHistoryProcessed,
		watchHistoryMediaID,
		watchHistoryPoster,
		posterURLSource,
		watchHistorySource,
		settingsTextValue,
		mediaEntityType,
		mediaSourceProvider,
		mediaFavorite,
		watchHistoryReprocessed,
		llmStats,
	}
}
