package migration

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	// 纯Go SQLite驱动，测试不依赖CGO
	_ "modernc.org/sqlite"
)

// newTestDB 打开内存SQLite
// 内存库是每连接一份的，限制连接数避免结构变更丢失
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: ":memory:"}, &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func newTestRunner(db *gorm.DB, units []*Unit) *Runner {
	return NewRunner(db, units, log.New(io.Discard, "", 0))
}

// 测试单元使用的表模型

type alphaRow struct {
	ID   uint   `gorm:"primarykey"`
	Name string `gorm:"not null"`
}

func (alphaRow) TableName() string { return "alpha" }

type betaRow struct {
	ID    uint `gorm:"primarykey"`
	Count int  `gorm:"not null;default:0"`
}

func (betaRow) TableName() string { return "beta" }

type gammaRow struct {
	ID    uint `gorm:"primarykey"`
	Label string
}

func (gammaRow) TableName() string { return "gamma" }

func createUnit(name string, model interface{}, table string) *Unit {
	return &Unit{
		Name: name,
		Upgrade: func(m Mutator) error {
			return m.CreateTable(model)
		},
		Downgrade: func(m Mutator) error {
			return m.DropTable(table, true)
		},
	}
}

func readVersion(t *testing.T, db *gorm.DB) int {
	t.Helper()
	version, err := NewVersionStore(db).Read(context.Background())
	require.NoError(t, err)
	return version
}

func TestRunnerRun(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	t.Run("空库按序应用全部单元", func(t *testing.T) {
		db := newTestDB(t)
		units := []*Unit{
			createUnit("001_alpha", &alphaRow{}, "alpha"),
			createUnit("002_beta", &betaRow{}, "beta"),
			createUnit("003_gamma", &gammaRow{}, "gamma"),
		}

		result, err := newTestRunner(db, units).Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, []int{1, 2, 3}, result.Applied)
		assert.Equal(t, 3, result.FinalVersion)
		assert.Equal(t, 3, readVersion(t, db))
		assert.True(t, db.Migrator().HasTable("alpha"))
		assert.True(t, db.Migrator().HasTable("beta"))
		assert.True(t, db.Migrator().HasTable("gamma"))
	})

	t.Run("重复启动不重放已应用的单元", func(t *testing.T) {
		db := newTestDB(t)
		units := []*Unit{
			createUnit("001_alpha", &alphaRow{}, "alpha"),
			createUnit("002_beta", &betaRow{}, "beta"),
		}
		runner := newTestRunner(db, units)

		_, err := runner.Run(context.Background())
		require.NoError(t, err)

		// 第二次启动应当是纯读路径：重放会因表已存在而报错
		result, err := runner.Run(context.Background())
		require.NoError(t, err)
		assert.Empty(t, result.Applied)
		assert.Equal(t, 2, result.FinalVersion)
	})

	t.Run("注册顺序打乱仍按版本升序执行", func(t *testing.T) {
		db := newTestDB(t)
		var order []string
		unit := func(name string) *Unit {
			return &Unit{
				Name: name,
				Upgrade: func(m Mutator) error {
					order = append(order, name)
					return nil
				},
			}
		}
		units := []*Unit{unit("003_third"), unit("001_first"), unit("002_second")}

		result, err := newTestRunner(db, units).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, result.Applied)
		assert.Equal(t, []string{"001_first", "002_second", "003_third"}, order)
	})

	t.Run("版本号允许空洞", func(t *testing.T) {
		db := newTestDB(t)
		units := []*Unit{
			createUnit("001_alpha", &alphaRow{}, "alpha"),
			createUnit("004_beta", &betaRow{}, "beta"),
			createUnit("009_gamma", &gammaRow{}, "gamma"),
		}

		result, err := newTestRunner(db, units).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int{1, 4, 9}, result.Applied)
		assert.Equal(t, 9, readVersion(t, db))
	})

	t.Run("新进程从上次版本续跑", func(t *testing.T) {
		db := newTestDB(t)
		first := createUnit("001_alpha", &alphaRow{}, "alpha")
		second := createUnit("002_beta", &betaRow{}, "beta")

		// 旧版本的二进制只带第一个单元
		_, err := newTestRunner(db, []*Unit{first}).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, readVersion(t, db))

		// 升级后的二进制带完整链，只补缺的部分
		result, err := newTestRunner(db, []*Unit{first, second}).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int{2}, result.Applied)
		assert.Equal(t, 2, readVersion(t, db))
	})

	t.Run("单元失败时版本停在上一个成功单元", func(t *testing.T) {
		db := newTestDB(t)
		// 建表后对不存在的表加列，离线校验无法发现，真实执行时失败
		broken := &Unit{
			Name: "002_beta",
			Upgrade: func(m Mutator) error {
				if err := m.CreateTable(&betaRow{}); err != nil {
					return err
				}
				return m.AddColumn("no_such_table", "col", ColumnDef{Type: TypeVarchar})
			},
			Downgrade: func(m Mutator) error {
				if err := m.DropColumn("no_such_table", "col"); err != nil {
					return err
				}
				return m.DropTable("beta", true)
			},
		}
		units := []*Unit{
			createUnit("001_alpha", &alphaRow{}, "alpha"),
			broken,
			createUnit("003_gamma", &gammaRow{}, "gamma"),
		}

		_, err := newTestRunner(db, units).Run(context.Background())
		require.Error(t, err)

		var merr *MigrationError
		require.ErrorAs(t, err, &merr)
		assert.Equal(t, 2, merr.Version)
		assert.Equal(t, "002_beta", merr.Name)
		assert.Equal(t, "upgrade", merr.Direction)

		var serr *SchemaError
		assert.ErrorAs(t, err, &serr)

		// 失败单元的结构变更随事务回滚，后续单元不执行
		assert.Equal(t, 1, readVersion(t, db))
		assert.True(t, db.Migrator().HasTable("alpha"))
		assert.False(t, db.Migrator().HasTable("beta"))
		assert.False(t, db.Migrator().HasTable("gamma"))
	})

	t.Run("修复失败单元后重启恢复推进", func(t *testing.T) {
		db := newTestDB(t)
		first := createUnit("001_alpha", &alphaRow{}, "alpha")
		broken := &Unit{
			Name: "002_beta",
			Upgrade: func(m Mutator) error {
				return m.AddColumn("no_such_table", "col", ColumnDef{Type: TypeVarchar})
			},
			Downgrade: func(m Mutator) error {
				return m.DropColumn("no_such_table", "col")
			},
		}
		third := createUnit("003_gamma", &gammaRow{}, "gamma")

		_, err := newTestRunner(db, []*Unit{first, broken, third}).Run(context.Background())
		require.Error(t, err)
		assert.Equal(t, 1, readVersion(t, db))

		// 部署修复后的版本
		fixed := createUnit("002_beta", &betaRow{}, "beta")
		result, err := newTestRunner(db, []*Unit{first, fixed, third}).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int{2, 3}, result.Applied)
		assert.Equal(t, 3, readVersion(t, db))
	})

	t.Run("版本号重复整体拒绝", func(t *testing.T) {
		db := newTestDB(t)
		units := []*Unit{
			createUnit("001_alpha", &alphaRow{}, "alpha"),
			createUnit("001_beta", &betaRow{}, "beta"),
		}

		_, err := newTestRunner(db, units).Run(context.Background())
		require.Error(t, err)

		var derr *DiscoveryError
		require.ErrorAs(t, err, &derr)

		// 发现阶段失败时任何单元都不能执行
		assert.False(t, db.Migrator().HasTable("alpha"))
		assert.False(t, db.Migrator().HasTable("beta"))
	})

	t.Run("降级引用未触碰的表在启动时被拒绝", func(t *testing.T) {
		db := newTestDB(t)
		units := []*Unit{
			{
				Name: "001_alpha",
				Upgrade: func(m Mutator) error {
					return m.CreateTable(&alphaRow{})
				},
				// 复制粘贴错了表名
				Downgrade: func(m Mutator) error {
					return m.DropTable("beta", true)
				},
			},
		}

		_, err := newTestRunner(db, units).Run(context.Background())
		require.Error(t, err)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "beta", verr.Table)
		assert.False(t, db.Migrator().HasTable("alpha"))
	})
}

func TestRunnerBeforeApplyHook(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	t.Run("钩子只在有待执行单元时触发", func(t *testing.T) {
		db := newTestDB(t)
		units := []*Unit{
			createUnit("001_alpha", &alphaRow{}, "alpha"),
			createUnit("002_beta", &betaRow{}, "beta"),
		}

		calls := 0
		var sawPending []int
		runner := newTestRunner(db, units)
		runner.OnBeforeApply(func(ctx context.Context, pending []Entry) error {
			calls++
			for _, e := range pending {
				sawPending = append(sawPending, e.Version)
			}
			return nil
		})

		_, err := runner.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.Equal(t, []int{1, 2}, sawPending)

		// 已是最新版本，钩子不再触发
		_, err = runner.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("钩子失败中止整个迁移", func(t *testing.T) {
		db := newTestDB(t)
		units := []*Unit{createUnit("001_alpha", &alphaRow{}, "alpha")}

		runner := newTestRunner(db, units)
		runner.OnBeforeApply(func(ctx context.Context, pending []Entry) error {
			return errors.New("backup target unreachable")
		})

		_, err := runner.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pre-migration hook failed")
		assert.Equal(t, 0, readVersion(t, db))
		assert.False(t, db.Migrator().HasTable("alpha"))
	})
}

func TestRunnerRollback(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	threeUnits := func() []*Unit {
		return []*Unit{
			createUnit("001_alpha", &alphaRow{}, "alpha"),
			createUnit("002_beta", &betaRow{}, "beta"),
			createUnit("003_gamma", &gammaRow{}, "gamma"),
		}
	}

	t.Run("降序回滚到目标版本", func(t *testing.T) {
		db := newTestDB(t)
		units := threeUnits()
		runner := newTestRunner(db, units)

		_, err := runner.Run(context.Background())
		require.NoError(t, err)

		result, err := runner.Rollback(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, []int{3, 2}, result.RolledBack)
		assert.Equal(t, 1, result.FinalVersion)
		assert.Equal(t, 1, readVersion(t, db))
		assert.True(t, db.Migrator().HasTable("alpha"))
		assert.False(t, db.Migrator().HasTable("beta"))
		assert.False(t, db.Migrator().HasTable("gamma"))
	})

	t.Run("回滚到0撤销全部单元", func(t *testing.T) {
		db := newTestDB(t)
		units := threeUnits()
		runner := newTestRunner(db, units)

		_, err := runner.Run(context.Background())
		require.NoError(t, err)

		result, err := runner.Rollback(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, []int{3, 2, 1}, result.RolledBack)
		assert.Equal(t, 0, readVersion(t, db))
		assert.False(t, db.Migrator().HasTable("alpha"))
	})

	t.Run("版本有空洞时落到下一个更低的注册版本", func(t *testing.T) {
		db := newTestDB(t)
		units := []*Unit{
			createUnit("001_alpha", &alphaRow{}, "alpha"),
			createUnit("004_beta", &betaRow{}, "beta"),
			createUnit("009_gamma", &gammaRow{}, "gamma"),
		}
		runner := newTestRunner(db, units)

		_, err := runner.Run(context.Background())
		require.NoError(t, err)

		result, err := runner.Rollback(context.Background(), 4)
		require.NoError(t, err)
		assert.Equal(t, []int{9}, result.RolledBack)
		assert.Equal(t, 4, readVersion(t, db))

		result, err = runner.Rollback(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, []int{4, 1}, result.RolledBack)
		assert.Equal(t, 0, readVersion(t, db))
	})

	t.Run("目标等于当前版本时无事发生", func(t *testing.T) {
		db := newTestDB(t)
		runner := newTestRunner(db, threeUnits())

		_, err := runner.Run(context.Background())
		require.NoError(t, err)

		result, err := runner.Rollback(context.Background(), 3)
		require.NoError(t, err)
		assert.Empty(t, result.RolledBack)
		assert.Equal(t, 3, result.FinalVersion)
	})

	t.Run("非法目标被拒绝", func(t *testing.T) {
		db := newTestDB(t)
		runner := newTestRunner(db, threeUnits())

		_, err := runner.Run(context.Background())
		require.NoError(t, err)

		tests := []struct {
			name   string
			target int
		}{
			{"负数", -1},
			{"超过当前版本", 7},
			{"未注册的版本", 5},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := runner.Rollback(context.Background(), tt.target)
				assert.Error(t, err)
				assert.Equal(t, 3, readVersion(t, db))
			})
		}
	})

	t.Run("降级失败时版本停在最后成功回滚处", func(t *testing.T) {
		db := newTestDB(t)
		// 降级先删表再改列，真实执行时第二步必然失败
		units := []*Unit{
			createUnit("001_alpha", &alphaRow{}, "alpha"),
			{
				Name: "002_beta",
				Upgrade: func(m Mutator) error {
					return m.CreateTable(&betaRow{})
				},
				Downgrade: func(m Mutator) error {
					if err := m.DropTable("beta", true); err != nil {
						return err
					}
					return m.AddNotNull("beta", "count")
				},
			},
			createUnit("003_gamma", &gammaRow{}, "gamma"),
		}
		runner := newTestRunner(db, units)

		_, err := runner.Run(context.Background())
		require.NoError(t, err)

		_, err = runner.Rollback(context.Background(), 0)
		require.Error(t, err)

		var merr *MigrationError
		require.ErrorAs(t, err, &merr)
		assert.Equal(t, 2, merr.Version)
		assert.Equal(t, "downgrade", merr.Direction)

		// 单元3回滚成功，单元2的降级随事务回滚，表仍然在
		assert.Equal(t, 2, readVersion(t, db))
		assert.True(t, db.Migrator().HasTable("beta"))
		assert.False(t, db.Migrator().HasTable("gamma"))
	})

	t.Run("缺失降级函数的单元无法回滚", func(t *testing.T) {
		db := newTestDB(t)
		units := []*Unit{
			createUnit("001_alpha", &alphaRow{}, "alpha"),
			{
				Name: "002_beta",
				Upgrade: func(m Mutator) error {
					return m.CreateTable(&betaRow{})
				},
			},
		}
		runner := newTestRunner(db, units)

		_, err := runner.Run(context.Background())
		require.NoError(t, err)

		_, err = runner.Rollback(context.Background(), 0)
		require.Error(t, err)

		var merr *MigrationError
		require.ErrorAs(t, err, &merr)
		assert.Equal(t, 2, merr.Version)
		assert.Equal(t, 2, readVersion(t, db))
	})
}

func TestRunnerStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	db := newTestDB(t)
	units := []*Unit{
		createUnit("001_alpha", &alphaRow{}, "alpha"),
		createUnit("002_beta", &betaRow{}, "beta"),
	}
	runner := newTestRunner(db, units)

	status, err := runner.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, status.Current)
	assert.Equal(t, []string{"001_alpha", "002_beta"}, status.Pending)

	_, err = runner.Run(context.Background())
	require.NoError(t, err)

	status, err = runner.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, status.Current)
	assert.Empty(t, status.Pending)
}
