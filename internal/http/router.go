package http

import (
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/libmanage/internal/auth"
	"github.com/mrlokans/libmanage/internal/entities"
)

const hstsMaxAge = 180 * 24 * time.Hour

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	router.Use(auth.SecurityHeadersMiddleware())
	if cfg.SecureCookies {
		router.Use(auth.StrictTransportSecurityMiddleware(hstsMaxAge))
	}

	// Sessions load first so the auth middleware and CSRF checks can see them.
	if cfg.SessionManager != nil {
		router.Use(cfg.SessionManager.SessionLoadSave())
	}
	if cfg.AuthService != nil {
		router.Use(auth.NewMiddleware(cfg.AuthService, cfg.SessionManager).Handler())
	}
	if len(cfg.CSRFSecret) > 0 {
		router.Use(auth.CSRFMiddleware(cfg.CSRFSecret, cfg.SecureCookies, cfg.AuthService, auth.TokenPath))
	}

	if cfg.Files != nil {
		router.Static("/uploads", filepath.Join(cfg.Files.Root(), "uploads"))
	}

	var db Pinger
	if cfg.Database != nil {
		db = cfg.Database
	}
	health := NewHealthController(db, cfg.Files, cfg.Version)
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	api := router.Group("/api")
	if cfg.AuthController != nil {
		cfg.AuthController.RegisterRoutes(api.Group("/auth"))
	}

	signedIn := auth.RequireAuth()
	staff := auth.RequireRole(entities.UserRoleAdmin, entities.UserRoleManager)
	adminOnly := auth.RequireRole(entities.UserRoleAdmin)
	upload := limitBody(cfg.MaxUploadBytes)

	books := NewBooksController(cfg.Books, cfg.Ratings, cfg.Audit)
	reviews := NewReviewsController(cfg.Ratings, cfg.Audit)
	borrows := NewBorrowsController(cfg.Borrows)
	readerController := NewReaderController(cfg.Reader)

	api.GET("/books", books.List)
	api.GET("/books/form-options", staff, books.FormOptions)
	api.POST("/books", staff, upload, books.Create)
	api.GET("/books/:id", books.Details)
	api.GET("/books/:id/edit", staff, books.EditInfo)
	api.PUT("/books/:id", staff, upload, books.Update)
	api.GET("/books/:id/delete", staff, books.DeleteInfo)
	api.DELETE("/books/:id", staff, books.Delete)
	api.GET("/books/:id/listen", signedIn, books.Listen)
	api.GET("/books/:id/read", signedIn, readerController.Read)
	api.GET("/books/:id/reviews", reviews.List)
	api.POST("/books/:id/reviews", signedIn, reviews.Add)
	api.POST("/books/:id/borrow", signedIn, borrows.Rent)

	api.GET("/borrows", signedIn, borrows.List)
	api.POST("/borrows/:id/return", signedIn, borrows.Return)

	authors := NewAuthorsController(cfg.Authors, cfg.Audit)
	api.GET("/authors", authors.List)
	api.POST("/authors", staff, upload, authors.Create)
	api.GET("/authors/:id", authors.Details)
	api.GET("/authors/:id/edit", staff, authors.EditInfo)
	api.PUT("/authors/:id", staff, upload, authors.Edit)
	api.GET("/authors/:id/delete", staff, authors.DeleteInfo)
	api.DELETE("/authors/:id", staff, authors.Delete)

	publishers := NewPublishersController(cfg.Publishers, cfg.Audit)
	api.GET("/publishers", publishers.List)
	api.POST("/publishers", staff, upload, publishers.Create)
	api.GET("/publishers/:id", publishers.Details)
	api.GET("/publishers/:id/edit", staff, publishers.EditInfo)
	api.PUT("/publishers/:id", staff, upload, publishers.Edit)
	api.GET("/publishers/:id/delete", staff, publishers.DeleteInfo)
	api.DELETE("/publishers/:id", staff, publishers.Delete)

	if cfg.Countries != nil {
		countriesController := NewCountriesController(cfg.Countries)
		api.GET("/countries", countriesController.List)
	}

	moderation := api.Group("/moderation", staff)
	moderation.GET("/reviews", reviews.Pending)
	moderation.POST("/reviews/:id/approve", reviews.Approve)
	moderation.DELETE("/reviews/:id", reviews.Delete)

	admin := NewAdminController(cfg.Dashboard, cfg.Users, cfg.Audit)
	adminGroup := api.Group("/admin", adminOnly)
	adminGroup.GET("/dashboard", admin.Dashboard)
	adminGroup.GET("/users", admin.Users)
	adminGroup.PUT("/users/:id/role", admin.ChangeRole)
	adminGroup.POST("/users/:id/deactivate", admin.Deactivate)
	if cfg.Audit != nil {
		auditController := NewAuditController(cfg.Audit)
		adminGroup.GET("/audit", auditController.List)
	}

	return router
}
