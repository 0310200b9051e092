package interfaces

// Compile-time interface implementation checks.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/libmanage/internal/audit"
	"github.com/mrlokans/libmanage/internal/borrowing"
	"github.com/mrlokans/libmanage/internal/countries"
	"github.com/mrlokans/libmanage/internal/database"
	"github.com/mrlokans/libmanage/internal/http"
	"github.com/mrlokans/libmanage/internal/storage"
	"github.com/mrlokans/libmanage/internal/tasks"
)

// =============================================================================
// Storage
// =============================================================================

var _ storage.Storage = (*storage.FileStorage)(nil)

var _ http.Pinger = (*database.Database)(nil)

// =============================================================================
// External Services
// =============================================================================

var _ countries.Fetcher = (*countries.Client)(nil)
var _ countries.Lister = (*countries.Client)(nil)
var _ countries.Lister = (*countries.CachedClient)(nil)

var _ countries.Cache = (*countries.RedisCache)(nil)
var _ countries.Cache = (*countries.MemoryCache)(nil)

// =============================================================================
// Background Tasks
// =============================================================================

var _ tasks.OverdueExpirer = (*borrowing.Service)(nil)
var _ tasks.CountryRefresher = (*countries.CachedClient)(nil)
var _ tasks.AuditPruner = (*audit.Service)(nil)
