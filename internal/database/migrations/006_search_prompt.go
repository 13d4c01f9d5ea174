package migrations

import (
	"discovarr/internal/database/migration"
)

// 搜索的query列改名为prompt，与LLM术语保持一致
var searchPrompt = &migration.Unit{
	Name: "006_search_prompt",
	Upgrade: func(m migration.Mutator) error {
		return m.RenameColumn("searches", "query", "prompt")
	},
	Downgrade: func(m migration.Mutator) error {
		return m.RenameColumn("searches", "prompt", "query")
	},
}
