package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// 支持的数据库方言
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// 声明式列类型，由Mutator翻译为各方言的原生类型
const (
	TypeVarchar  = "varchar"
	TypeText     = "text"
	TypeInteger  = "integer"
	TypeBigInt   = "bigint"
	TypeFloat    = "float"
	TypeBoolean  = "boolean"
	TypeDateTime = "datetime"
	TypeDate     = "date"
)

var errColumnNotFound = errors.New("column does not exist")

// ColumnDef 声明式列定义：类型、可空性与默认值
// 迁移单元只描述期望的列形态，DDL翻译由Mutator完成
type ColumnDef struct {
	Type    string
	Size    int // varchar长度，0表示使用默认值255
	NotNull bool
	Default interface{} // nil表示无默认值
}

// Mutator 结构变更能力对象
// 每个原语要么整体成功，要么返回携带表、列与原因的SchemaError。
// 迁移单元只通过该接口触碰数据库，包括UpdateRows这样的行级回填，
// 这样每个单元都可以被离线录制并做upgrade/downgrade对称性校验。
type Mutator interface {
	// AddColumn 新增列；列已存在时报错而不是静默跳过
	AddColumn(table, column string, def ColumnDef) error
	// DropColumn 删除列
	DropColumn(table, column string) error
	// RenameColumn 重命名列
	RenameColumn(table, oldName, newName string) error
	// AlterColumnType 按新的列定义整体重定义列（类型、可空性、默认值）
	AlterColumnType(table, column string, def ColumnDef) error
	// AddNotNull 为列添加NOT NULL约束；存在NULL值时失败
	AddNotNull(table, column string) error
	// DropNotNull 去除列的NOT NULL约束
	DropNotNull(table, column string) error
	// CreateTable 依据模型描述建表
	CreateTable(model interface{}) error
	// DropTable 删表；safe为true时表不存在不算错误
	DropTable(table string, safe bool) error
	// UpdateRows 对表内所有行做赋值回填，用于加NOT NULL约束前的数据准备
	UpdateRows(table string, values map[string]interface{}) error
}

// gormMutator 基于GORM连接的Mutator实现
// SQLite不支持修改列定义，采用与playhouse一致的重建策略：
// 建临时表、拷贝数据、删旧表、改名、重建索引
type gormMutator struct {
	db      *gorm.DB
	dialect string
}

// NewMutator 创建基于GORM连接的结构变更器
// db可以是事务句柄，Runner按单元传入事务内的连接
func NewMutator(db *gorm.DB) Mutator {
	return &gormMutator{
		db:      db,
		dialect: db.Dialector.Name(),
	}
}

// AddColumn 新增列
func (m *gormMutator) AddColumn(table, column string, def ColumnDef) error {
	colSQL, err := renderColumn(column, def, m.dialect)
	if err != nil {
		return &SchemaError{Op: "add_column", Table: table, Column: column, Cause: err}
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoteIdent(table), colSQL)
	if err := m.db.Exec(stmt).Error; err != nil {
		return &SchemaError{Op: "add_column", Table: table, Column: column, Cause: err}
	}
	return nil
}

// DropColumn 删除列
func (m *gormMutator) DropColumn(table, column string) error {
	stmt := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quoteIdent(table), quoteIdent(column))
	if err := m.db.Exec(stmt).Error; err != nil {
		return &SchemaError{Op: "drop_column", Table: table, Column: column, Cause: err}
	}
	return nil
}

// RenameColumn 重命名列
func (m *gormMutator) RenameColumn(table, oldName, newName string) error {
	stmt := fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
		quoteIdent(table), quoteIdent(oldName), quoteIdent(newName))
	if err := m.db.Exec(stmt).Error; err != nil {
		return &SchemaError{Op: "rename_column", Table: table, Column: oldName, Cause: err}
	}
	return nil
}

// AlterColumnType 重定义列
func (m *gormMutator) AlterColumnType(table, column string, def ColumnDef) error {
	typeSQL, err := renderType(def, m.dialect)
	if err != nil {
		return &SchemaError{Op: "alter_column_type", Table: table, Column: column, Cause: err}
	}

	if m.dialect == DialectPostgres {
		stmts := []string{
			fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s",
				quoteIdent(table), quoteIdent(column), typeSQL, quoteIdent(column), typeSQL),
		}
		if def.NotNull {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL",
				quoteIdent(table), quoteIdent(column)))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL",
				quoteIdent(table), quoteIdent(column)))
		}
		if def.Default != nil {
			defaultSQL, err := renderDefault(def.Default)
			if err != nil {
				return &SchemaError{Op: "alter_column_type", Table: table, Column: column, Cause: err}
			}
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s",
				quoteIdent(table), quoteIdent(column), defaultSQL))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT",
				quoteIdent(table), quoteIdent(column)))
		}
		for _, stmt := range stmts {
			if err := m.db.Exec(stmt).Error; err != nil {
				return &SchemaError{Op: "alter_column_type", Table: table, Column: column, Cause: err}
			}
		}
		return nil
	}

	defaultSQL := ""
	if def.Default != nil {
		defaultSQL, err = renderDefault(def.Default)
		if err != nil {
			return &SchemaError{Op: "alter_column_type", Table: table, Column: column, Cause: err}
		}
	}
	return m.rebuildSQLite("alter_column_type", table, column, func(col *sqliteColumn) {
		col.Type = typeSQL
		if def.NotNull {
			col.NotNull = 1
		} else {
			col.NotNull = 0
		}
		col.Default = sql.NullString{String: defaultSQL, Valid: def.Default != nil}
	})
}

// AddNotNull 添加NOT NULL约束
func (m *gormMutator) AddNotNull(table, column string) error {
	if m.dialect == DialectPostgres {
		stmt := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL",
			quoteIdent(table), quoteIdent(column))
		if err := m.db.Exec(stmt).Error; err != nil {
			return &SchemaError{Op: "add_not_null", Table: table, Column: column, Cause: err}
		}
		return nil
	}
	return m.rebuildSQLite("add_not_null", table, column, func(col *sqliteColumn) {
		col.NotNull = 1
	})
}

// DropNotNull 去除NOT NULL约束
func (m *gormMutator) DropNotNull(table, column string) error {
	if m.dialect == DialectPostgres {
		stmt := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL",
			quoteIdent(table), quoteIdent(column))
		if err := m.db.Exec(stmt).Error; err != nil {
			return &SchemaError{Op: "drop_not_null", Table: table, Column: column, Cause: err}
		}
		return nil
	}
	return m.rebuildSQLite("drop_not_null", table, column, func(col *sqliteColumn) {
		col.NotNull = 0
	})
}

// CreateTable 依据模型建表
func (m *gormMutator) CreateTable(model interface{}) error {
	table, err := TableNameOf(model, m.db.NamingStrategy)
	if err != nil {
		return &SchemaError{Op: "create_table", Table: fmt.Sprintf("%T", model), Cause: err}
	}
	if err := m.db.Migrator().CreateTable(model); err != nil {
		return &SchemaError{Op: "create_table", Table: table, Cause: err}
	}
	return nil
}

// DropTable 删表
func (m *gormMutator) DropTable(table string, safe bool) error {
	stmt := "DROP TABLE "
	if safe {
		stmt += "IF EXISTS "
	}
	stmt += quoteIdent(table)
	if err := m.db.Exec(stmt).Error; err != nil {
		return &SchemaError{Op: "drop_table", Table: table, Cause: err}
	}
	return nil
}

// UpdateRows 全表回填
func (m *gormMutator) UpdateRows(table string, values map[string]interface{}) error {
	if len(values) == 0 {
		return &SchemaError{Op: "update_rows", Table: table, Cause: errors.New("no values given")}
	}
	res := m.db.Table(table).Session(&gorm.Session{AllowGlobalUpdate: true}).Updates(values)
	if res.Error != nil {
		return &SchemaError{Op: "update_rows", Table: table, Cause: res.Error}
	}
	return nil
}

// sqliteColumn PRAGMA table_info的一行
type sqliteColumn struct {
	CID     int            `gorm:"column:cid"`
	Name    string         `gorm:"column:name"`
	Type    string         `gorm:"column:type"`
	NotNull int            `gorm:"column:notnull"`
	Default sql.NullString `gorm:"column:dflt_value"`
	PK      int            `gorm:"column:pk"`
}

// rebuildSQLite SQLite的列重定义路径：
// 以修改后的列定义建临时表，整表拷贝，删旧表改名，再重建非自动索引。
// 拷贝阶段会天然触发约束检查，例如对含NULL的列加NOT NULL会在这里失败。
func (m *gormMutator) rebuildSQLite(op, table, column string, mutate func(col *sqliteColumn)) error {
	var cols []sqliteColumn
	if err := m.db.Raw(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table))).Scan(&cols).Error; err != nil {
		return &SchemaError{Op: op, Table: table, Column: column, Cause: err}
	}
	if len(cols) == 0 {
		return &SchemaError{Op: op, Table: table, Column: column, Cause: errors.New("table does not exist")}
	}

	found := false
	pkCount := 0
	for i := range cols {
		if cols[i].PK > 0 {
			pkCount++
		}
		if cols[i].Name == column {
			mutate(&cols[i])
			found = true
		}
	}
	if !found {
		return &SchemaError{Op: op, Table: table, Column: column, Cause: errColumnNotFound}
	}

	// 原表使用AUTOINCREMENT时保留该语义
	var tableSQL sql.NullString
	if err := m.db.Raw("SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).
		Scan(&tableSQL).Error; err != nil {
		return &SchemaError{Op: op, Table: table, Column: column, Cause: err}
	}
	autoIncrement := tableSQL.Valid && strings.Contains(strings.ToUpper(tableSQL.String), "AUTOINCREMENT")

	// 重建前收集需要恢复的索引，sql为NULL的自动索引跳过
	type indexRow struct {
		Name string
		SQL  string
	}
	var indexes []indexRow
	if err := m.db.Raw("SELECT name, sql FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND sql IS NOT NULL", table).
		Scan(&indexes).Error; err != nil {
		return &SchemaError{Op: op, Table: table, Column: column, Cause: err}
	}

	defs := make([]string, 0, len(cols))
	names := make([]string, 0, len(cols))
	pkCols := make([]string, 0, 1)
	for _, c := range cols {
		d := quoteIdent(c.Name) + " " + c.Type
		if c.PK > 0 {
			if pkCount == 1 && strings.EqualFold(c.Type, "integer") {
				d += " PRIMARY KEY"
				if autoIncrement {
					d += " AUTOINCREMENT"
				}
			} else {
				pkCols = append(pkCols, quoteIdent(c.Name))
			}
		}
		if c.NotNull == 1 {
			d += " NOT NULL"
		}
		if c.Default.Valid {
			d += " DEFAULT " + c.Default.String
		}
		defs = append(defs, d)
		names = append(names, quoteIdent(c.Name))
	}
	if len(pkCols) > 0 {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(pkCols, ", ")+")")
	}

	tmp := table + "__rebuild"
	colList := strings.Join(names, ", ")
	stmts := []string{
		fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(tmp), strings.Join(defs, ", ")),
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", quoteIdent(tmp), colList, colList, quoteIdent(table)),
		fmt.Sprintf("DROP TABLE %s", quoteIdent(table)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quoteIdent(tmp), quoteIdent(table)),
	}
	for _, idx := range indexes {
		stmts = append(stmts, idx.SQL)
	}

	for _, stmt := range stmts {
		if err := m.db.Exec(stmt).Error; err != nil {
			return &SchemaError{Op: op, Table: table, Column: column, Cause: err}
		}
	}
	return nil
}

// TableNameOf 解析模型对应的表名
// 纯反射操作，不需要数据库连接，录制器与GORM实现共用
func TableNameOf(model interface{}, namer schema.Namer) (string, error) {
	if namer == nil {
		namer = schema.NamingStrategy{}
	}
	s, err := schema.Parse(model, &sync.Map{}, namer)
	if err != nil {
		return "", fmt.Errorf("failed to parse model schema: %w", err)
	}
	return s.Table, nil
}

// ColumnsOf 解析模型声明的数据库列名
func ColumnsOf(model interface{}, namer schema.Namer) ([]string, error) {
	if namer == nil {
		namer = schema.NamingStrategy{}
	}
	s, err := schema.Parse(model, &sync.Map{}, namer)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model schema: %w", err)
	}
	cols := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.DBName != "" {
			cols = append(cols, f.DBName)
		}
	}
	return cols, nil
}

// renderColumn 生成“列名 类型 [NOT NULL] [DEFAULT x]”片段
func renderColumn(column string, def ColumnDef, dialect string) (string, error) {
	typeSQL, err := renderType(def, dialect)
	if err != nil {
		return "", err
	}
	out := quoteIdent(column) + " " + typeSQL
	if def.NotNull {
		out += " NOT NULL"
	}
	if def.Default != nil {
		defaultSQL, err := renderDefault(def.Default)
		if err != nil {
			return "", err
		}
		out += " DEFAULT " + defaultSQL
	}
	return out, nil
}

// renderType 声明式类型到方言原生类型
func renderType(def ColumnDef, dialect string) (string, error) {
	pg := dialect == DialectPostgres
	switch def.Type {
	case TypeVarchar:
		size := def.Size
		if size == 0 {
			size = 255
		}
		return fmt.Sprintf("varchar(%d)", size), nil
	case TypeText:
		return "text", nil
	case TypeInteger:
		return "integer", nil
	case TypeBigInt:
		if pg {
			return "bigint", nil
		}
		return "integer", nil
	case TypeFloat:
		if pg {
			return "double precision", nil
		}
		return "real", nil
	case TypeBoolean:
		if pg {
			return "boolean", nil
		}
		return "numeric", nil
	case TypeDateTime:
		if pg {
			return "timestamptz", nil
		}
		return "datetime", nil
	case TypeDate:
		return "date", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", def.Type)
	}
}

// renderDefault 默认值字面量
func renderDefault(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'", nil
	case bool:
		if val {
			return "true", nil
		}
		return "false", nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val), nil
	case float32, float64:
		return fmt.Sprintf("%v", val), nil
	default:
		return "", fmt.Errorf("unsupported default value type %T", v)
	}
}

// quoteIdent 标识符加引号，双引号在SQLite与PostgreSQL下都合法
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
