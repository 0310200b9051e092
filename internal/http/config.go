package http

import (
	"github.com/mrlokans/libmanage/internal/audit"
	"github.com/mrlokans/libmanage/internal/auth"
	"github.com/mrlokans/libmanage/internal/borrowing"
	"github.com/mrlokans/libmanage/internal/catalog"
	"github.com/mrlokans/libmanage/internal/countries"
	"github.com/mrlokans/libmanage/internal/dashboard"
	"github.com/mrlokans/libmanage/internal/database"
	"github.com/mrlokans/libmanage/internal/database/users"
	"github.com/mrlokans/libmanage/internal/ratings"
	"github.com/mrlokans/libmanage/internal/reader"
	"github.com/mrlokans/libmanage/internal/storage"
)

// RouterConfig contains all dependencies needed to create the HTTP router.
type RouterConfig struct {
	Database *database.Database
	Files    *storage.FileStorage

	Books      *catalog.BookService
	Authors    *catalog.AuthorService
	Publishers *catalog.PublisherService
	Borrows    *borrowing.Service
	Ratings    *ratings.Service
	Reader     *reader.Service
	Dashboard  *dashboard.Service
	Users      *users.Repository
	Countries  countries.Lister
	Audit      *audit.Service

	// Authentication
	AuthService    *auth.Service
	AuthController *auth.AuthController
	SessionManager *auth.SessionManager
	CSRFSecret     []byte
	SecureCookies  bool

	MaxUploadBytes int64

	Version string
}
