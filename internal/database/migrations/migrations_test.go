package migrations

import (
	"context"
	"io"
	"log"
	"testing"

	"discovarr/internal/database/migration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	// 纯Go SQLite驱动，测试不依赖CGO
	_ "modernc.org/sqlite"
)

// 链尾版本，新增迁移时更新
const headVersion = 19

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func newRunner(db *gorm.DB, units []*migration.Unit) *migration.Runner {
	return migration.NewRunner(db, units, log.New(io.Discard, "", 0))
}

// unitsThrough 链中版本号不超过max的前缀
func unitsThrough(t *testing.T, max int) []*migration.Unit {
	t.Helper()
	entries, err := migration.Discover(All())
	require.NoError(t, err)

	units := make([]*migration.Unit, 0, len(entries))
	for _, e := range entries {
		if e.Version <= max {
			units = append(units, e.Unit)
		}
	}
	return units
}

type columnRow struct {
	Name    string `gorm:"column:name"`
	Type    string `gorm:"column:type"`
	NotNull int    `gorm:"column:notnull"`
}

func tableColumns(t *testing.T, db *gorm.DB, table string) map[string]columnRow {
	t.Helper()
	var cols []columnRow
	require.NoError(t, db.Raw(`PRAGMA table_info("`+table+`")`).Scan(&cols).Error)
	out := make(map[string]columnRow, len(cols))
	for _, c := range cols {
		out[c.Name] = c
	}
	return out
}

func TestChainLint(t *testing.T) {
	// 每个单元的降级只允许触碰对应升级动过的表和列
	assert.NoError(t, migration.Check(All()))
}

func TestChainVersions(t *testing.T) {
	entries, err := migration.Discover(All())
	require.NoError(t, err)

	versions := make([]int, 0, len(entries))
	for _, e := range entries {
		versions = append(versions, e.Version)
	}

	// 版本5在未发布的变更中废弃，空洞保留
	want := []int{1, 2, 3, 4, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19}
	assert.Equal(t, want, versions)
}

func TestChainReplay(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	db := newTestDB(t)
	result, err := newRunner(db, All()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, headVersion, result.FinalVersion)

	// 最终形态的表
	for _, table := range []string{"media", "searches", "watch_history", "settings", "schedules", "llm_stats"} {
		assert.True(t, db.Migrator().HasTable(table), "table %s should exist", table)
	}
	assert.False(t, db.Migrator().HasTable("search_stats"), "search_stats replaced by llm_stats")

	media := tableColumns(t, db, "media")
	for _, col := range []string{
		"title", "media_type", "entity_type", "watched", "watch_count",
		"source_provider", "favorite", "genres", "networks", "poster_url_source",
	} {
		_, ok := media[col]
		assert.True(t, ok, "media.%s should exist", col)
	}
	assert.Equal(t, 1, media["entity_type"].NotNull)

	searches := tableColumns(t, db, "searches")
	_, hasPrompt := searches["prompt"]
	_, hasQuery := searches["query"]
	assert.True(t, hasPrompt)
	assert.False(t, hasQuery, "query renamed to prompt")
	_, hasKwargs := searches["kwargs"]
	_, hasLastRun := searches["last_run_date"]
	assert.True(t, hasKwargs)
	assert.True(t, hasLastRun)

	history := tableColumns(t, db, "watch_history")
	_, hasMediaID := history["media_id"]
	_, hasProcessed := history["processed"]
	_, hasTitle := history["title"]
	assert.True(t, hasMediaID)
	assert.True(t, hasProcessed)
	assert.False(t, hasTitle, "title dropped in the rebuild")

	// 014把settings.value放宽成text
	settings := tableColumns(t, db, "settings")
	assert.Equal(t, "text", settings["value"].Type)

	// 重放幂等：再次启动无事发生
	again, err := newRunner(db, All()).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again.Applied)
}

func TestChainBackfill(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	db := newTestDB(t)

	// 运行到14，相当于升级前的存量部署
	result, err := newRunner(db, unitsThrough(t, 14)).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 14, result.FinalVersion)

	// 存量行没有entity_type列
	require.NoError(t, db.Exec(
		`INSERT INTO media (title, media_type) VALUES ('Dark', 'tv'), ('The Leftovers', 'tv')`,
	).Error)

	// 升级到链尾，15的回填在加NOT NULL前执行
	result, err = newRunner(db, All()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, headVersion, result.FinalVersion)

	var types []string
	require.NoError(t, db.Table("media").Order("id").Pluck("entity_type", &types).Error)
	assert.Equal(t, []string{"suggestion", "suggestion"}, types)

	// 约束对新行真实生效
	err = db.Exec(`INSERT INTO media (title, media_type) VALUES ('Severance', 'tv')`).Error
	assert.Error(t, err, "entity_type is NOT NULL after the backfill")

	// 观看历史在15被整表重建，旧行不保留
	var historyCount int64
	require.NoError(t, db.Table("watch_history").Count(&historyCount).Error)
	assert.EqualValues(t, 0, historyCount)
}

func TestChainRollback(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	t.Run("回滚到15恢复旧统计表", func(t *testing.T) {
		db := newTestDB(t)
		runner := newRunner(db, All())

		_, err := runner.Run(context.Background())
		require.NoError(t, err)

		result, err := runner.Rollback(context.Background(), 15)
		require.NoError(t, err)
		assert.Equal(t, 15, result.FinalVersion)
		assert.Equal(t, []int{19, 18, 17, 16}, result.RolledBack)

		assert.False(t, db.Migrator().HasTable("llm_stats"))
		assert.True(t, db.Migrator().HasTable("search_stats"))

		media := tableColumns(t, db, "media")
		_, hasFavorite := media["favorite"]
		_, hasSource := media["source_provider"]
		assert.False(t, hasFavorite)
		assert.False(t, hasSource)

		history := tableColumns(t, db, "watch_history")
		_, hasProcessed := history["processed"]
		assert.False(t, hasProcessed, "018 rolled back")
	})

	t.Run("整链回滚到0后可重新推进", func(t *testing.T) {
		db := newTestDB(t)
		runner := newRunner(db, All())

		_, err := runner.Run(context.Background())
		require.NoError(t, err)

		result, err := runner.Rollback(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, 0, result.FinalVersion)
		assert.Len(t, result.RolledBack, len(All()))

		for _, table := range []string{"media", "searches", "watch_history", "settings", "schedules", "llm_stats", "search_stats"} {
			assert.False(t, db.Migrator().HasTable(table), "table %s should be gone", table)
		}

		// 版本记录本身保留
		assert.True(t, db.Migrator().HasTable("schema_version"))

		// 再次从头重放
		again, err := runner.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, headVersion, again.FinalVersion)
		assert.True(t, db.Migrator().HasTable("media"))
	})

	t.Run("回滚经过15重建旧版观看历史", func(t *testing.T) {
		db := newTestDB(t)
		runner := newRunner(db, All())

		_, err := runner.Run(context.Background())
		require.NoError(t, err)

		_, err = runner.Rollback(context.Background(), 14)
		require.NoError(t, err)

		// 降级恢复了带title等冗余列的旧表
		history := tableColumns(t, db, "watch_history")
		_, hasTitle := history["title"]
		_, hasPoster := history["poster_url"]
		_, hasSource := history["source"]
		assert.True(t, hasTitle)
		assert.True(t, hasPoster)
		assert.True(t, hasSource)

		media := tableColumns(t, db, "media")
		_, hasEntityType := media["entity_type"]
		assert.False(t, hasEntityType)
	})
}
