package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// trackRow 结构变更测试用的模型
type trackRow struct {
	ID     uint   `gorm:"primarykey"`
	Title  string `gorm:"not null"`
	Artist string
	Plays  int `gorm:"not null;default:0"`
}

func (trackRow) TableName() string { return "tracks" }

func setupTracks(t *testing.T) *gorm.DB {
	t.Helper()
	db := newTestDB(t)
	require.NoError(t, NewMutator(db).CreateTable(&trackRow{}))
	require.NoError(t, db.Exec(
		`INSERT INTO tracks (title, artist, plays) VALUES ('Blue in Green', 'Miles Davis', 3), ('So What', 'Miles Davis', 7)`,
	).Error)
	return db
}

func columnInfo(t *testing.T, db *gorm.DB, table string) map[string]sqliteColumn {
	t.Helper()
	var cols []sqliteColumn
	require.NoError(t, db.Raw("PRAGMA table_info("+quoteIdent(table)+")").Scan(&cols).Error)
	out := make(map[string]sqliteColumn, len(cols))
	for _, c := range cols {
		out[c.Name] = c
	}
	return out
}

func countRows(t *testing.T, db *gorm.DB, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Table(table).Count(&n).Error)
	return n
}

func TestMutatorAddColumn(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	t.Run("新增带约束和默认值的列", func(t *testing.T) {
		db := setupTracks(t)
		m := NewMutator(db)

		err := m.AddColumn("tracks", "rating", ColumnDef{Type: TypeInteger, NotNull: true, Default: 5})
		require.NoError(t, err)

		cols := columnInfo(t, db, "tracks")
		col, ok := cols["rating"]
		require.True(t, ok)
		assert.Equal(t, 1, col.NotNull)
		assert.Equal(t, "5", col.Default.String)

		// 已有行拿到默认值
		var rating int
		require.NoError(t, db.Raw("SELECT rating FROM tracks WHERE title = 'So What'").Scan(&rating).Error)
		assert.Equal(t, 5, rating)
	})

	t.Run("列已存在时报错", func(t *testing.T) {
		db := setupTracks(t)
		m := NewMutator(db)

		err := m.AddColumn("tracks", "artist", ColumnDef{Type: TypeVarchar})
		require.Error(t, err)

		var serr *SchemaError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "add_column", serr.Op)
		assert.Equal(t, "tracks", serr.Table)
		assert.Equal(t, "artist", serr.Column)
	})

	t.Run("不支持的类型报错", func(t *testing.T) {
		db := setupTracks(t)
		m := NewMutator(db)

		err := m.AddColumn("tracks", "payload", ColumnDef{Type: "blob"})
		require.Error(t, err)

		var serr *SchemaError
		require.ErrorAs(t, err, &serr)
	})
}

func TestMutatorDropColumn(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	t.Run("删除列", func(t *testing.T) {
		db := setupTracks(t)
		m := NewMutator(db)

		require.NoError(t, m.DropColumn("tracks", "artist"))

		cols := columnInfo(t, db, "tracks")
		_, ok := cols["artist"]
		assert.False(t, ok)
		assert.EqualValues(t, 2, countRows(t, db, "tracks"))
	})

	t.Run("列不存在时报错", func(t *testing.T) {
		db := setupTracks(t)
		err := NewMutator(db).DropColumn("tracks", "composer")
		require.Error(t, err)

		var serr *SchemaError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "drop_column", serr.Op)
	})
}

func TestMutatorRenameColumn(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	db := setupTracks(t)
	m := NewMutator(db)

	require.NoError(t, m.RenameColumn("tracks", "plays", "play_count"))

	cols := columnInfo(t, db, "tracks")
	_, old := cols["plays"]
	_, renamed := cols["play_count"]
	assert.False(t, old)
	assert.True(t, renamed)

	// 数据跟着列名走
	var plays int
	require.NoError(t, db.Raw("SELECT play_count FROM tracks WHERE title = 'So What'").Scan(&plays).Error)
	assert.Equal(t, 7, plays)
}

func TestMutatorAlterColumnType(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	t.Run("varchar放宽为text保留数据", func(t *testing.T) {
		db := setupTracks(t)
		m := NewMutator(db)

		require.NoError(t, m.AlterColumnType("tracks", "artist", ColumnDef{Type: TypeText}))

		cols := columnInfo(t, db, "tracks")
		assert.Equal(t, "text", cols["artist"].Type)

		var artist string
		require.NoError(t, db.Raw("SELECT artist FROM tracks WHERE title = 'Blue in Green'").Scan(&artist).Error)
		assert.Equal(t, "Miles Davis", artist)
	})

	t.Run("列不存在时报错", func(t *testing.T) {
		db := setupTracks(t)
		err := NewMutator(db).AlterColumnType("tracks", "composer", ColumnDef{Type: TypeText})
		require.Error(t, err)

		var serr *SchemaError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "composer", serr.Column)
	})
}

func TestMutatorNotNull(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	t.Run("无NULL值时加约束成功", func(t *testing.T) {
		db := setupTracks(t)
		m := NewMutator(db)

		require.NoError(t, m.AddNotNull("tracks", "artist"))

		cols := columnInfo(t, db, "tracks")
		assert.Equal(t, 1, cols["artist"].NotNull)
		assert.EqualValues(t, 2, countRows(t, db, "tracks"))

		// 约束真实生效
		err := db.Exec(`INSERT INTO tracks (title, artist) VALUES ('Untitled', NULL)`).Error
		assert.Error(t, err)
	})

	t.Run("存在NULL值时加约束失败", func(t *testing.T) {
		db := setupTracks(t)
		require.NoError(t, db.Exec(`INSERT INTO tracks (title, artist) VALUES ('Nardis', NULL)`).Error)

		// 生产路径里Mutator总是跑在事务内，失败时临时表一并回滚
		err := db.Transaction(func(tx *gorm.DB) error {
			return NewMutator(tx).AddNotNull("tracks", "artist")
		})
		require.Error(t, err)

		var serr *SchemaError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "add_not_null", serr.Op)

		// 原表不受影响，重建用的临时表没有残留
		assert.EqualValues(t, 3, countRows(t, db, "tracks"))
		assert.Equal(t, 0, columnInfo(t, db, "tracks")["artist"].NotNull)
		assert.False(t, db.Migrator().HasTable("tracks__rebuild"))
	})

	t.Run("回填后加约束成功", func(t *testing.T) {
		db := setupTracks(t)
		require.NoError(t, db.Exec(`INSERT INTO tracks (title, artist) VALUES ('Nardis', NULL)`).Error)
		m := NewMutator(db)

		require.NoError(t, m.UpdateRows("tracks", map[string]interface{}{"artist": "unknown"}))
		require.NoError(t, m.AddNotNull("tracks", "artist"))

		var artist string
		require.NoError(t, db.Raw("SELECT artist FROM tracks WHERE title = 'Nardis'").Scan(&artist).Error)
		assert.Equal(t, "unknown", artist)
	})

	t.Run("去除约束后允许NULL", func(t *testing.T) {
		db := setupTracks(t)
		m := NewMutator(db)

		require.NoError(t, m.DropNotNull("tracks", "title"))
		assert.Equal(t, 0, columnInfo(t, db, "tracks")["title"].NotNull)

		err := db.Exec(`INSERT INTO tracks (title, artist) VALUES (NULL, 'Bill Evans')`).Error
		assert.NoError(t, err)
	})
}

func TestMutatorRebuildPreservesTable(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	db := newTestDB(t)
	require.NoError(t, db.Exec(
		`CREATE TABLE tracks (id integer PRIMARY KEY AUTOINCREMENT, title varchar(255) NOT NULL, artist varchar(255))`,
	).Error)
	require.NoError(t, db.Exec(`CREATE INDEX idx_tracks_title ON tracks(title)`).Error)
	require.NoError(t, db.Exec(
		`INSERT INTO tracks (title, artist) VALUES ('Blue in Green', 'Miles Davis'), ('Peace Piece', 'Bill Evans')`,
	).Error)

	require.NoError(t, NewMutator(db).AddNotNull("tracks", "artist"))

	// 行数据原样保留
	var title string
	require.NoError(t, db.Raw("SELECT title FROM tracks WHERE id = 1").Scan(&title).Error)
	assert.Equal(t, "Blue in Green", title)

	// 自增语义保留：重建后删掉的ID不被复用
	require.NoError(t, db.Exec(`DELETE FROM tracks WHERE id = 2`).Error)
	require.NoError(t, db.Exec(`INSERT INTO tracks (title, artist) VALUES ('Waltz for Debby', 'Bill Evans')`).Error)
	var nextID int
	require.NoError(t, db.Raw("SELECT id FROM tracks WHERE title = 'Waltz for Debby'").Scan(&nextID).Error)
	assert.Equal(t, 3, nextID)

	// 命名索引重建
	var indexCount int64
	require.NoError(t, db.Raw(
		"SELECT count(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_tracks_title'",
	).Scan(&indexCount).Error)
	assert.EqualValues(t, 1, indexCount)

	var tableSQL string
	require.NoError(t, db.Raw(
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'tracks'",
	).Scan(&tableSQL).Error)
	assert.Contains(t, tableSQL, "AUTOINCREMENT")
}

func TestMutatorTables(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	t.Run("建表后可写入", func(t *testing.T) {
		db := newTestDB(t)
		m := NewMutator(db)

		require.NoError(t, m.CreateTable(&trackRow{}))
		require.NoError(t, db.Exec(`INSERT INTO tracks (title, plays) VALUES ('So What', 1)`).Error)
		assert.EqualValues(t, 1, countRows(t, db, "tracks"))
	})

	t.Run("safe模式删除不存在的表", func(t *testing.T) {
		db := newTestDB(t)
		m := NewMutator(db)

		assert.NoError(t, m.DropTable("ghosts", true))

		err := m.DropTable("ghosts", false)
		require.Error(t, err)

		var serr *SchemaError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "drop_table", serr.Op)
	})
}

func TestMutatorUpdateRows(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	t.Run("全表回填", func(t *testing.T) {
		db := setupTracks(t)
		m := NewMutator(db)

		require.NoError(t, m.UpdateRows("tracks", map[string]interface{}{"plays": 0}))

		var total int
		require.NoError(t, db.Raw("SELECT sum(plays) FROM tracks").Scan(&total).Error)
		assert.Equal(t, 0, total)
	})

	t.Run("空值集合报错", func(t *testing.T) {
		db := setupTracks(t)
		err := NewMutator(db).UpdateRows("tracks", map[string]interface{}{})
		require.Error(t, err)

		var serr *SchemaError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "update_rows", serr.Op)
	})
}
