// Package database provides the data access layer for the application.
//
// # Architecture
//
//	database/
//	├── database.go      # Connection setup (sqlite or postgres) and migrations
//	└── users/           # User listing, role changes and deactivation
//
// Catalog, circulation and review tables are owned by their services
// (internal/catalog, internal/borrowing, internal/ratings, internal/reader,
// internal/audit),
// which work against the *gorm.DB handed out here.
//
// # Usage
//
//	db, err := database.Open(cfg.Database)
//	usersRepo := users.NewRepository(db.DB)
//
// # Drivers
//
// DATABASE_DRIVER selects the dialect:
//
//	DATABASE_DRIVER=sqlite    # default, DATABASE_PATH points at the file
//	DATABASE_DRIVER=postgres  # DATABASE_DSN holds the connection string
package database
