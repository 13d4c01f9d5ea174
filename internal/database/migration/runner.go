package migration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"gorm.io/gorm"
)

// Runner 迁移编排器
// 启动时读取当前版本，计算待执行单元并按版本升序应用。
// 每个单元的结构变更与版本提交在同一事务内完成（一单元一提交），
// 单元之间崩溃不会导致已成功的单元被重放，下次启动从正确位置续跑。
// 任何失败都直接上抛给启动流程，这里不做重试。
type Runner struct {
	db          *gorm.DB
	units       []*Unit
	store       VersionStore
	logger      *log.Logger
	beforeApply func(ctx context.Context, pending []Entry) error
}

// RunResult 一次迁移的结果
type RunResult struct {
	Applied      []int `json:"applied"`       // 本次应用的版本号，升序
	FinalVersion int   `json:"final_version"` // 结束后的当前版本
}

// RollbackResult 一次回滚的结果
type RollbackResult struct {
	RolledBack   []int `json:"rolled_back"`   // 本次回滚的版本号，降序
	FinalVersion int   `json:"final_version"` // 结束后的当前版本
}

// Status 当前迁移状态
type Status struct {
	Current int      `json:"current"`
	Pending []string `json:"pending"`
}

// NewRunner 创建迁移编排器
// logger为nil时使用带[MIGRATION]前缀的默认日志
func NewRunner(db *gorm.DB, units []*Unit, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(os.Stdout, "[MIGRATION] ", log.LstdFlags)
	}
	return &Runner{
		db:     db,
		units:  units,
		store:  NewVersionStore(db),
		logger: logger,
	}
}

// OnBeforeApply 注册首个单元执行前的钩子
// 仅当存在待执行单元时触发，用于迁移前备份；钩子失败则中止整个迁移
func (r *Runner) OnBeforeApply(fn func(ctx context.Context, pending []Entry) error) {
	r.beforeApply = fn
}

// Run 应用所有待执行的迁移单元
// 无待执行单元的启动是常态路径：一次版本读取后直接返回。
// 失败时不推进版本号，剩余单元不再尝试，错误对启动流程是致命的。
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	entries, err := Discover(r.units)
	if err != nil {
		return nil, err
	}
	if err := checkEntries(entries); err != nil {
		return nil, err
	}

	if err := r.store.Ensure(ctx); err != nil {
		return nil, err
	}
	current, err := r.store.Read(ctx)
	if err != nil {
		return nil, err
	}

	pending := pendingAfter(entries, current)
	if len(pending) == 0 {
		r.logger.Printf("Schema is up to date at version %d", current)
		return &RunResult{Applied: []int{}, FinalVersion: current}, nil
	}

	r.logger.Printf("Current schema version: %d, %d migration(s) pending", current, len(pending))

	if r.beforeApply != nil {
		if err := r.beforeApply(ctx, pending); err != nil {
			return nil, fmt.Errorf("pre-migration hook failed: %w", err)
		}
	}

	result := &RunResult{Applied: make([]int, 0, len(pending)), FinalVersion: current}
	for _, e := range pending {
		if err := r.applyUpgrade(ctx, e); err != nil {
			return nil, err
		}
		result.Applied = append(result.Applied, e.Version)
		result.FinalVersion = e.Version
		r.logger.Printf("Applied migration %s (version %d)", e.Unit.Name, e.Version)
	}

	r.logger.Printf("Migrations completed, current version: %d", result.FinalVersion)
	return result, nil
}

// Rollback 显式回滚到目标版本
// 对版本大于target的已应用单元按降序执行downgrade，
// 每成功一个单元就把版本落到下一个更低的注册版本（没有则为0）。
// 中途失败时版本停留在最后一次成功回滚的位置，错误原样上抛。
func (r *Runner) Rollback(ctx context.Context, target int) (*RollbackResult, error) {
	entries, err := Discover(r.units)
	if err != nil {
		return nil, err
	}
	if err := checkEntries(entries); err != nil {
		return nil, err
	}

	if err := r.store.Ensure(ctx); err != nil {
		return nil, err
	}
	current, err := r.store.Read(ctx)
	if err != nil {
		return nil, err
	}

	if target < 0 {
		return nil, fmt.Errorf("rollback target must not be negative, got %d", target)
	}
	if target > current {
		return nil, fmt.Errorf("rollback target %d is ahead of current version %d", target, current)
	}
	if target != 0 && !hasVersion(entries, target) {
		return nil, fmt.Errorf("rollback target %d is not a registered migration version", target)
	}

	toRoll := make([]Entry, 0)
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Version > current {
			continue
		}
		if e.Version <= target {
			break
		}
		toRoll = append(toRoll, e)
	}

	result := &RollbackResult{RolledBack: make([]int, 0, len(toRoll)), FinalVersion: current}
	if len(toRoll) == 0 {
		r.logger.Printf("Nothing to roll back, current version: %d", current)
		return result, nil
	}

	for _, e := range toRoll {
		if e.Unit.Downgrade == nil {
			return nil, &MigrationError{
				Version:   e.Version,
				Name:      e.Unit.Name,
				Direction: "downgrade",
				Cause:     errors.New("no downgrade defined"),
			}
		}
		prev := previousVersion(entries, e.Version)
		if err := r.applyDowngrade(ctx, e, prev); err != nil {
			return nil, err
		}
		result.RolledBack = append(result.RolledBack, e.Version)
		result.FinalVersion = prev
		r.logger.Printf("Rolled back migration %s (version %d -> %d)", e.Unit.Name, e.Version, prev)
	}

	r.logger.Printf("Rollback completed, current version: %d", result.FinalVersion)
	return result, nil
}

// Status 返回当前版本与待执行单元
func (r *Runner) Status(ctx context.Context) (*Status, error) {
	entries, err := Discover(r.units)
	if err != nil {
		return nil, err
	}
	if err := r.store.Ensure(ctx); err != nil {
		return nil, err
	}
	current, err := r.store.Read(ctx)
	if err != nil {
		return nil, err
	}

	status := &Status{Current: current, Pending: make([]string, 0)}
	for _, e := range pendingAfter(entries, current) {
		status.Pending = append(status.Pending, e.Unit.Name)
	}
	return status, nil
}

// applyUpgrade 在单个事务内执行单元的upgrade并提交新版本
func (r *Runner) applyUpgrade(ctx context.Context, e Entry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.Unit.Upgrade(NewMutator(tx)); err != nil {
			return &MigrationError{Version: e.Version, Name: e.Unit.Name, Direction: "upgrade", Cause: err}
		}
		return r.store.Write(tx, e.Version)
	})
}

// applyDowngrade 在单个事务内执行单元的downgrade并落回prev版本
func (r *Runner) applyDowngrade(ctx context.Context, e Entry, prev int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.Unit.Downgrade(NewMutator(tx)); err != nil {
			return &MigrationError{Version: e.Version, Name: e.Unit.Name, Direction: "downgrade", Cause: err}
		}
		return r.store.Write(tx, prev)
	})
}

// pendingAfter 版本号大于current的单元，升序
func pendingAfter(entries []Entry, current int) []Entry {
	pending := make([]Entry, 0)
	for _, e := range entries {
		if e.Version > current {
			pending = append(pending, e)
		}
	}
	return pending
}

// previousVersion 下一个更低的注册版本，没有则为0
func previousVersion(entries []Entry, version int) int {
	prev := 0
	for _, e := range entries {
		if e.Version >= version {
			break
		}
		prev = e.Version
	}
	return prev
}

func hasVersion(entries []Entry, version int) bool {
	for _, e := range entries {
		if e.Version == version {
			return true
		}
	}
	return false
}
