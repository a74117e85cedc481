package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	stdlog "log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/username/taxfolio/ledger/src/logger"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

var DB *sql.DB

// Open opens the SQLite database at databasePath with the pragmas the ledger relies on.
func Open(databasePath string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", databasePath)
	if databasePath != MemoryPath {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", databasePath, err)
	}

	// A single connection serialises writers and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded migrations to db.
func Migrate(db *sql.DB) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migration instance creation failed: %w", err)
	}

	// m.Close would also close db, so only the source is released.
	defer source.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.L.Info("No new database migrations to apply.")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	logger.L.Info("Database migrations applied successfully.")
	return nil
}

// InitDB opens the application database and stores it in DB.
func InitDB(databasePath string) {
	db, err := Open(databasePath)
	if err != nil {
		stdlog.Fatalf("failed to initialise database: %v", err)
	}
	DB = db
	logger.L.Info("Database connection established with busy_timeout and foreign_keys enabled.", "path", databasePath)
}

// RunMigrations applies the embedded migrations to DB.
func RunMigrations() {
	if DB == nil {
		logger.L.Error("Database connection is not initialized before running migrations")
		return
	}
	logger.L.Info("Applying database migrations...")
	if err := Migrate(DB); err != nil {
		logger.L.Error("Failed to apply migrations", "error", err)
		stdlog.Fatalf("failed to apply migrations: %v", err)
	}
}
