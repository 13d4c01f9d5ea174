package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"discovarr/internal/config"
	"discovarr/internal/database"
	"discovarr/internal/database/migration"
	"discovarr/internal/database/migrations"

	"github.com/joho/godotenv"
)

// migrate 迁移运维工具
//
//	migrate status            显示当前版本与待执行单元
//	migrate up                应用所有待执行单元
//	migrate down -target N    回滚到版本N（0表示回滚全部）
//	migrate lint              离线校验迁移链，不连接数据库
func main() {
	log.SetFlags(0)

	command := "status"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	// lint是纯离线校验，不需要数据库连接
	if command == "lint" {
		runLint()
		return
	}

	loadEnv()
	cfg := config.Load()

	// 打开连接但不自动迁移，up/down由命令显式驱动
	db, err := database.Open(cfg.Database, database.Options{})
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close(db)

	runner := migration.NewRunner(db, migrations.All(), nil)
	ctx := context.Background()

	switch command {
	case "status":
		runStatus(ctx, runner)
	case "up":
		runUp(ctx, runner)
	case "down":
		fs := flag.NewFlagSet("down", flag.ExitOnError)
		target := fs.Int("target", -1, "version to roll back to (0 reverts everything)")
		fs.Parse(os.Args[2:])
		if *target < 0 {
			log.Fatal("down requires -target N, e.g. migrate down -target 14")
		}
		runDown(ctx, runner, *target)
	default:
		usage()
		os.Exit(2)
	}
}

// loadEnv 加载环境变量 - 优先加载.env.local，然后是.env
func loadEnv() {
	if err := godotenv.Load(".env.local"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("Warning: No .env file found, using system environment variables")
		}
	}
}

func runStatus(ctx context.Context, runner *migration.Runner) {
	status, err := runner.Status(ctx)
	if err != nil {
		log.Fatalf("Failed to read migration status: %v", err)
	}

	fmt.Printf("Current schema version: %d\n", status.Current)
	if len(status.Pending) == 0 {
		fmt.Println("Schema is up to date")
		return
	}
	fmt.Printf("Pending migrations (%d):\n", len(status.Pending))
	for _, name := range status.Pending {
		fmt.Printf("  %s\n", name)
	}
}

func runUp(ctx context.Context, runner *migration.Runner) {
	result, err := runner.Run(ctx)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if len(result.Applied) == 0 {
		fmt.Printf("Nothing to apply, schema is at version %d\n", result.FinalVersion)
		return
	}
	fmt.Printf("Applied %d migration(s), schema is now at version %d\n",
		len(result.Applied), result.FinalVersion)
}

func runDown(ctx context.Context, runner *migration.Runner, target int) {
	result, err := runner.Rollback(ctx, target)
	if err != nil {
		log.Fatalf("Rollback failed: %v", err)
	}

	if len(result.RolledBack) == 0 {
		fmt.Printf("Nothing to roll back, schema is at version %d\n", result.FinalVersion)
		return
	}
	fmt.Printf("Rolled back %d migration(s), schema is now at version %d\n",
		len(result.RolledBack), result.FinalVersion)
}

// usage 打印命令用法
func usage() {
	fmt.Fprintf(os.Stderr, `Usage: migrate <command>

Commands:
  status            show current version and pending units
  up                apply all pending units
  down -target N    roll back to version N (0 reverts everything)
  lint              validate the migration chain offline without a database
`)
}

// runLint 对编译进二进制的迁移链做静态校验：
// 版本号可解析且无重复，downgrade只触碰对应upgrade动过的表和列
func runLint() {
	if err := migration.Check(migrations.All()); err != nil {
		log.Fatalf("Migration chain check failed: %v", err)
	}
	fmt.Printf("Migration chain OK (%d units)\n", len(migrations.All()))
}
