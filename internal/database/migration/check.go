package migration

import (
	"fmt"
	"sort"
)

// recordedOp 录制到的一次原语调用
type recordedOp struct {
	Op         string
	Table      string
	Columns    []string
	WholeTable bool // create_table/drop_table触碰整张表
}

// recorder 离线录制器：只记录每个原语触碰的表和列，不碰任何数据库。
// 迁移单元的Upgrade/Downgrade都是纯粹基于Mutator接口的函数，
// 因此可以在启动时零成本地重放一遍做静态校验。
type recorder struct {
	ops []recordedOp
}

func (r *recorder) AddColumn(table, column string, def ColumnDef) error {
	r.ops = append(r.ops, recordedOp{Op: "add_column", Table: table, Columns: []string{column}})
	return nil
}

func (r *recorder) DropColumn(table, column string) error {
	r.ops = append(r.ops, recordedOp{Op: "drop_column", Table: table, Columns: []string{column}})
	return nil
}

func (r *recorder) RenameColumn(table, oldName, newName string) error {
	r.ops = append(r.ops, recordedOp{Op: "rename_column", Table: table, Columns: []string{oldName, newName}})
	return nil
}

func (r *recorder) AlterColumnType(table, column string, def ColumnDef) error {
	r.ops = append(r.ops, recordedOp{Op: "alter_column_type", Table: table, Columns: []string{column}})
	return nil
}

func (r *recorder) AddNotNull(table, column string) error {
	r.ops = append(r.ops, recordedOp{Op: "add_not_null", Table: table, Columns: []string{column}})
	return nil
}

func (r *recorder) DropNotNull(table, column string) error {
	r.ops = append(r.ops, recordedOp{Op: "drop_not_null", Table: table, Columns: []string{column}})
	return nil
}

func (r *recorder) CreateTable(model interface{}) error {
	table, err := TableNameOf(model, nil)
	if err != nil {
		return &SchemaError{Op: "create_table", Table: fmt.Sprintf("%T", model), Cause: err}
	}
	cols, err := ColumnsOf(model, nil)
	if err != nil {
		return &SchemaError{Op: "create_table", Table: table, Cause: err}
	}
	r.ops = append(r.ops, recordedOp{Op: "create_table", Table: table, Columns: cols, WholeTable: true})
	return nil
}

func (r *recorder) DropTable(table string, safe bool) error {
	r.ops = append(r.ops, recordedOp{Op: "drop_table", Table: table, WholeTable: true})
	return nil
}

func (r *recorder) UpdateRows(table string, values map[string]interface{}) error {
	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	r.ops = append(r.ops, recordedOp{Op: "update_rows", Table: table, Columns: cols})
	return nil
}

// touchSet upgrade触碰过的表与列
type touchSet struct {
	tables  map[string]bool          // create/drop过的整表
	columns map[string]map[string]bool
}

func newTouchSet(ops []recordedOp) *touchSet {
	t := &touchSet{
		tables:  make(map[string]bool),
		columns: make(map[string]map[string]bool),
	}
	for _, op := range ops {
		if op.WholeTable {
			t.tables[op.Table] = true
		}
		for _, col := range op.Columns {
			if t.columns[op.Table] == nil {
				t.columns[op.Table] = make(map[string]bool)
			}
			t.columns[op.Table][col] = true
		}
	}
	return t
}

// covers 该表的列是否被upgrade触碰过
// upgrade整表建删过的表，downgrade可以引用其任意列
func (t *touchSet) covers(table, column string) bool {
	if t.tables[table] {
		return true
	}
	return t.columns[table][column]
}

func (t *touchSet) coversTable(table string) bool {
	return t.tables[table] || len(t.columns[table]) > 0
}

// Check 静态校验所有迁移单元的downgrade与upgrade的对称性
// 通过录制器离线重放每个单元，downgrade引用了upgrade从未触碰的
// 表或列即判定为缺陷（历史上出现过rollback写错表名的事故），
// 返回ValidationError。建删整表的单元允许downgrade重建该表。
func Check(units []*Unit) error {
	entries, err := Discover(units)
	if err != nil {
		return err
	}
	return checkEntries(entries)
}

func checkEntries(entries []Entry) error {
	for _, e := range entries {
		if e.Unit.Upgrade == nil {
			return &DiscoveryError{Name: e.Unit.Name, Reason: "upgrade function is nil"}
		}
		up := &recorder{}
		if err := e.Unit.Upgrade(up); err != nil {
			return &MigrationError{Version: e.Version, Name: e.Unit.Name, Direction: "upgrade", Cause: err}
		}

		if e.Unit.Downgrade == nil {
			continue
		}
		down := &recorder{}
		if err := e.Unit.Downgrade(down); err != nil {
			return &MigrationError{Version: e.Version, Name: e.Unit.Name, Direction: "downgrade", Cause: err}
		}

		touched := newTouchSet(up.ops)
		for _, op := range down.ops {
			if !touched.coversTable(op.Table) {
				return &ValidationError{Version: e.Version, Name: e.Unit.Name, Op: op.Op, Table: op.Table}
			}
			// 整表操作的对称性只要求upgrade建删过该表
			if op.WholeTable {
				if !touched.tables[op.Table] {
					return &ValidationError{Version: e.Version, Name: e.Unit.Name, Op: op.Op, Table: op.Table}
				}
				continue
			}
			for _, col := range op.Columns {
				if !touched.covers(op.Table, col) {
					return &ValidationError{Version: e.Version, Name: e.Unit.Name, Op: op.Op, Table: op.Table, Column: col}
				}
			}
		}
	}
	return nil
}
