package main

import (
	"flag"
	"fmt"
	"os"

	_ "github.com/go-sql-driver/mysql"

	"github.com/BaSui01/dormflow/config"
	"github.com/BaSui01/dormflow/internal/migration"
)

func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	switch subcommand {
	case "up", "down", "version":
	case "help", "-h", "--help":
		printMigrateUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", subcommand)
		printMigrateUsage()
		os.Exit(1)
	}

	migrator, err := createMigrator(args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	switch subcommand {
	case "up":
		if err := migrator.Up(); err != nil {
			fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migrations applied")
	case "down":
		if err := migrator.Down(); err != nil {
			fmt.Fprintf(os.Stderr, "Rollback failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Rolled back one migration")
	case "version":
		version, dirty, err := migrator.Version()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read version: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Version: %d (dirty: %v)\n", version, dirty)
	}
}

func createMigrator(args []string) (*migration.Migrator, error) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	dbURL := fs.String("db-url", "", "MySQL DSN (overrides config)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	dsn := *dbURL
	if dsn == "" {
		loader := config.NewLoader()
		if *configPath != "" {
			loader = loader.WithConfigPath(*configPath)
		}
		cfg, err := loader.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Database.Driver != "mysql" {
			return nil, fmt.Errorf("migrations require the mysql driver, got %q", cfg.Database.Driver)
		}
		// golang-migrate runs each file as one statement batch.
		dsn = cfg.Database.DSN() + "&multiStatements=true"
	}
	return migration.NewMySQLMigrator(dsn)
}

func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  dormflow migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration
  version   Show current migration version
  help      Show this help message

Options:
  --config <path>   Path to configuration file (YAML)
  --db-url <dsn>    MySQL DSN (default: from config)

Examples:
  dormflow migrate up
  dormflow migrate up --config /etc/dormflow/config.yaml
  dormflow migrate version`)
}
