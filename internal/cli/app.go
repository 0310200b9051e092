package cli

import (
	"github.com/mrlokans/libmanage/internal/config"
	"github.com/mrlokans/libmanage/internal/entrypoint"
)

// openApp builds the application from the environment. A non-empty dbPath
// overrides DATABASE_PATH.
func openApp(dbPath string) (*entrypoint.App, error) {
	cfg := config.NewConfig()
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	return entrypoint.NewApp(cfg)
}
