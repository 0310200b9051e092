package database

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/libmanage/internal/config"
	"github.com/mrlokans/libmanage/internal/entities"
)

type Database struct {
	DB *gorm.DB
}

// NewDatabase opens the SQLite catalog at dbPath.
func NewDatabase(dbPath string) (*Database, error) {
	return Open(config.Database{Driver: config.DatabaseDriverSQLite, Path: dbPath})
}

// Open connects to the configured driver and migrates the schema.
func Open(cfg config.Database) (*Database, error) {
	var dialector gorm.Dialector
	var target string
	switch cfg.Driver {
	case config.DatabaseDriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("DATABASE_DSN is required for the postgres driver")
		}
		dialector = postgres.Open(cfg.DSN)
		target = "postgres"
	case config.DatabaseDriverSQLite, "":
		dialector = sqlite.Open(cfg.Path)
		target = cfg.Path
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	level := logger.Warn
	if cfg.Debug {
		level = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("Database initialized successfully at %s", target)

	return &Database{DB: db}, nil
}

// Migrate creates or updates every table the application owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entities.User{},
		&entities.Author{},
		&entities.Publisher{},
		&entities.Book{},
		&entities.Borrow{},
		&entities.Review{},
		&entities.EpubProgress{},
		&entities.AuditEvent{},
	)
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping verifies the connection is alive.
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
