package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/libtrack/core/internal/adapters/repository"
	"github.com/libtrack/core/internal/infrastructure/config"
	"github.com/libtrack/core/internal/infrastructure/database"
	"github.com/libtrack/core/internal/infrastructure/logger"
	"github.com/libtrack/core/internal/infrastructure/server"
	"github.com/libtrack/core/internal/ports"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the LibTrack API server",
		Long:  "Start the LibTrack API server with all configured routes and middleware",
		Run: func(cmd *cobra.Command, args []string) {
			runServer()
		},
	}
}

// NewMigrateCommand creates the migrate command with subcommands
func NewMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long:  "Manage database migrations for the postgres storage driver (up, down, version)",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Run all up migrations",
		Run: func(cmd *cobra.Command, args []string) {
			runMigration("up")
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Run all down migrations",
		Run: func(cmd *cobra.Command, args []string) {
			runMigration("down")
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print current migration version",
		Run: func(cmd *cobra.Command, args []string) {
			showMigrationVersion()
		},
	})

	return migrateCmd
}

// NewBackupCommand creates the backup admin command
func NewBackupCommand() *cobra.Command {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Backup management commands",
		Long:  "Snapshot the current application document, list snapshots, or print one",
	}

	backupCmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Snapshot the current document as a new backup",
		Run: func(cmd *cobra.Command, args []string) {
			createBackup()
		},
	})

	backupCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored backups, newest first",
		Run: func(cmd *cobra.Command, args []string) {
			listBackups()
		},
	})

	backupCmd.AddCommand(&cobra.Command{
		Use:   "restore <id>",
		Short: "Print a stored backup payload to stdout",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			printBackup(args[0])
		},
	})

	return backupCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print LibTrack version",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load()
			if err != nil {
				fmt.Println("LibTrack Core")
				return
			}
			fmt.Printf("LibTrack Core v%s\n", cfg.App.Version)
		},
	}
}

func runServer() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	var db *database.DB
	if cfg.Storage.Driver == config.DriverPostgres {
		db, err = database.New(cfg.Database)
		if err != nil {
			appLogger.Fatal("Failed to connect to database", "error", err)
		}
		defer db.Close()
	}

	srv, err := server.New(cfg, db, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize server", "error", err)
	}

	appLogger.Info("Starting LibTrack API server",
		"port", cfg.Server.Port,
		"environment", cfg.App.Environment,
		"storage_driver", cfg.Storage.Driver,
	)

	if err := srv.Start(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		appLogger.Fatal("Server failed to start", "error", err)
	}
}

func runMigration(direction string) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.Storage.Driver != config.DriverPostgres {
		log.Fatalf("Migrations only apply to the postgres storage driver (current: %s)", cfg.Storage.Driver)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	m := newMigrator(db)

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	}

	if err != nil && err != migrate.ErrNoChange {
		log.Fatalf("Migration failed: %v", err)
	}

	if err == migrate.ErrNoChange {
		fmt.Println("No migrations to run")
	} else {
		fmt.Printf("Migration %s completed successfully\n", direction)
	}
}

func showMigrationVersion() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	version, dirty, err := newMigrator(db).Version()
	if err != nil {
		log.Fatalf("Failed to get migration version: %v", err)
	}

	fmt.Printf("Current migration version: %d\n", version)
	fmt.Printf("Dirty: %t\n", dirty)
}

func newMigrator(db *database.DB) *migrate.Migrate {
	driver, err := postgres.WithInstance(db.DB.DB, &postgres.Config{})
	if err != nil {
		log.Fatalf("Failed to create migration driver: %v", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		log.Fatalf("Failed to create migration instance: %v", err)
	}
	return m
}

// openStores builds the configured state and backup stores, plus a closer
// for the database connection when the postgres driver is active.
func openStores(cfg *config.Config) (ports.StateStore, ports.BackupStore, func()) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := database.New(cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		return repository.NewPostgresStateStore(db.DB, cfg.Storage.StateID),
			repository.NewPostgresBackupStore(db.DB),
			func() { db.Close() }
	case config.DriverFile:
		stateStore, err := repository.NewFileStateStore(cfg.Storage.DataDir, cfg.Storage.StateID)
		if err != nil {
			log.Fatalf("Failed to open state store: %v", err)
		}
		backupStore, err := repository.NewFileBackupStore(cfg.Storage.DataDir)
		if err != nil {
			log.Fatalf("Failed to open backup store: %v", err)
		}
		return stateStore, backupStore, func() {}
	default:
		log.Fatalf("Unknown storage driver: %s", cfg.Storage.Driver)
		return nil, nil, nil
	}
}

func createBackup() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	stateStore, backupStore, closeStores := openStores(cfg)
	defer closeStores()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	state, err := stateStore.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load document: %v", err)
	}

	payload, err := json.Marshal(state)
	if err != nil {
		log.Fatalf("Failed to encode document: %v", err)
	}

	backup, err := backupStore.Create(ctx, payload)
	if err != nil {
		log.Fatalf("Failed to create backup: %v", err)
	}

	fmt.Printf("Backup created: %s\n", backup.ID)
}

func listBackups() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	_, backupStore, closeStores := openStores(cfg)
	defer closeStores()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	infos, err := backupStore.List(ctx)
	if err != nil {
		log.Fatalf("Failed to list backups: %v", err)
	}

	if len(infos) == 0 {
		fmt.Println("No backups found")
		return
	}
	for _, info := range infos {
		fmt.Printf("%s  %s\n", info.ID, info.CreatedAt.Format(time.RFC3339))
	}
}

func printBackup(id string) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	_, backupStore, closeStores := openStores(cfg)
	defer closeStores()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backup, err := backupStore.Get(ctx, id)
	if err != nil {
		log.Fatalf("Failed to read backup %s: %v", id, err)
	}

	os.Stdout.Write(backup.Data)
	fmt.Println()
}
