package entrypoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/libmanage/internal/audit"
	"github.com/mrlokans/libmanage/internal/auth"
	"github.com/mrlokans/libmanage/internal/borrowing"
	"github.com/mrlokans/libmanage/internal/catalog"
	"github.com/mrlokans/libmanage/internal/config"
	"github.com/mrlokans/libmanage/internal/countries"
	"github.com/mrlokans/libmanage/internal/dashboard"
	"github.com/mrlokans/libmanage/internal/database"
	"github.com/mrlokans/libmanage/internal/database/users"
	http_controllers "github.com/mrlokans/libmanage/internal/http"
	"github.com/mrlokans/libmanage/internal/ratings"
	"github.com/mrlokans/libmanage/internal/reader"
	"github.com/mrlokans/libmanage/internal/scheduler"
	"github.com/mrlokans/libmanage/internal/storage"
	"github.com/mrlokans/libmanage/internal/tasks"
)

const csrfKeyLength = 32

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// App holds the services shared by the server and the CLI commands.
type App struct {
	DB         *database.Database
	Files      *storage.FileStorage
	Users      *users.Repository
	Auth       *auth.Service
	Borrows    *borrowing.Service
	Ratings    *ratings.Service
	Books      *catalog.BookService
	Authors    *catalog.AuthorService
	Publishers *catalog.PublisherService
	Reader     *reader.Service
	Dashboard  *dashboard.Service
	Audit      *audit.Service
}

// NewApp opens the database and the uploads tree and builds the services.
// cfg.Auth.SessionSecret is generated when empty.
func NewApp(cfg *config.Config) (*App, error) {
	if err := ensureSessionSecret(&cfg.Auth); err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	files, err := storage.NewFileStorage(cfg.Uploads.Root)
	if err != nil {
		db.Close()
		return nil, err
	}

	userRepo := users.NewRepository(db.DB)
	borrows := borrowing.NewService(db.DB)
	ratingSvc := ratings.NewService(db.DB)
	books := catalog.NewBookService(db.DB, files, borrows, ratingSvc)

	return &App{
		DB:         db,
		Files:      files,
		Users:      userRepo,
		Auth:       auth.NewService(db.DB, cfg.Auth),
		Borrows:    borrows,
		Ratings:    ratingSvc,
		Books:      books,
		Authors:    catalog.NewAuthorService(db.DB, files, books),
		Publishers: catalog.NewPublisherService(db.DB, files, books),
		Reader:     reader.NewService(db.DB, files, borrows),
		Dashboard:  dashboard.NewService(db.DB, userRepo),
		Audit:      audit.NewService(db.DB),
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// MissingPlaceholders lists the default images absent from the uploads tree.
func (a *App) MissingPlaceholders() []string {
	var missing []string
	for _, p := range []string{
		storage.PlaceholderCover,
		storage.PlaceholderAuthor,
		storage.PlaceholderPublisher,
		storage.PlaceholderUser,
	} {
		if !a.Files.Exists(p) {
			missing = append(missing, p)
		}
	}
	return missing
}

func ensureSessionSecret(cfg *config.Auth) error {
	if cfg.SessionSecret != "" {
		return nil
	}
	secret, err := auth.GenerateSessionSecret()
	if err != nil {
		return fmt.Errorf("failed to generate session secret: %w", err)
	}
	cfg.SessionSecret = secret
	return nil
}

// csrfKey derives the 32-byte gorilla/csrf key from the session secret.
// Hex secrets are decoded first.
func csrfKey(secret string) []byte {
	key, err := hex.DecodeString(secret)
	if err != nil {
		key = []byte(secret)
	}
	if len(key) >= csrfKeyLength {
		return key[:csrfKeyLength]
	}
	sum := sha256.Sum256(key)
	return sum[:]
}

// sweepJob enqueues the overdue sweep and the audit prune when the task
// queue runs, and does both inline otherwise.
func sweepJob(taskClient *tasks.Client, borrows *borrowing.Service, auditLog *audit.Service, retentionDays int) scheduler.SweepJob {
	if taskClient == nil {
		return func(ctx context.Context) error {
			closed, err := borrows.ExpireOverdue(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			log.Printf("[SWEEP] Closed %d overdue borrows", closed)

			if auditLog == nil || retentionDays <= 0 {
				return nil
			}
			pruned, err := auditLog.DeleteOldEvents(ctx, time.Duration(retentionDays)*24*time.Hour)
			if err != nil {
				return err
			}
			log.Printf("[SWEEP] Pruned %d audit events", pruned)
			return nil
		}
	}
	return func(ctx context.Context) error {
		if _, err := taskClient.Add(tasks.SweepOverdueBorrowsTask{}).Ctx(ctx).Save(); err != nil {
			return err
		}
		if retentionDays <= 0 {
			return nil
		}
		_, err := taskClient.Add(tasks.PruneAuditEventsTask{RetentionDays: retentionDays}).Ctx(ctx).Save()
		return err
	}
}

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server at %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// kill -2 is SIGINT; SIGKILL can't be caught
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server Shutdown: %v", err)
	}
	if onShutdown != nil {
		onShutdown(ctx)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting LibManage v%s", version)
	if cfg.Auth.SessionSecret == "" {
		log.Printf("Generating session secret (set AUTH_SESSION_SECRET to persist sessions and tokens across restarts)")
	}

	app, err := NewApp(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	if missing := app.MissingPlaceholders(); len(missing) > 0 {
		log.Printf("WARNING: placeholder images missing from %s: %v", app.Files.Root(), missing)
	}

	countryClient := countries.NewCachedClient(
		countries.NewClient(cfg.Countries),
		countries.NewCache(cfg.Redis),
		cfg.Countries.CacheTTL,
	)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	var taskClient *tasks.Client
	if cfg.Tasks.Enabled {
		taskClient, err = tasks.NewClient(cfg.Database.Path, tasks.FromAppConfig(cfg.Tasks))
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		taskClient.Register(
			tasks.NewSweepOverdueBorrowsQueue(app.Borrows),
			tasks.NewWarmCountryCacheQueue(countryClient),
			tasks.NewPruneAuditEventsQueue(app.Audit),
		)
		taskClient.Start(bgCtx)

		if _, err := taskClient.Add(tasks.WarmCountryCacheTask{}).Save(); err != nil {
			log.Printf("WARNING: failed to enqueue country cache warm-up: %v", err)
		}
	} else {
		go func() {
			if _, err := countryClient.Refresh(bgCtx); err != nil {
				log.Printf("WARNING: country cache warm-up failed: %v", err)
			}
		}()
	}

	sweeper := scheduler.NewOverdueSweepScheduler(cfg.Sweep, sweepJob(taskClient, app.Borrows, app.Audit, cfg.Sweep.AuditRetentionDays))
	if err := sweeper.Start(bgCtx); err != nil {
		log.Fatalf("Failed to start overdue sweep scheduler: %v", err)
	}

	sessionManager, err := auth.NewSessionManager(app.DB.DB, cfg.Auth)
	if err != nil {
		log.Fatalf("Failed to initialize session manager: %v", err)
	}
	authController := auth.NewAuthController(app.Auth, sessionManager, cfg.Auth)

	if hasUsers, err := app.Auth.HasUsers(bgCtx); err == nil && !hasUsers {
		log.Printf("No users found. Run '%s seed' or '%s create-user' to create accounts.", os.Args[0], os.Args[0])
	}

	router := http_controllers.NewRouter(http_controllers.RouterConfig{
		Database:       app.DB,
		Files:          app.Files,
		Books:          app.Books,
		Authors:        app.Authors,
		Publishers:     app.Publishers,
		Borrows:        app.Borrows,
		Ratings:        app.Ratings,
		Reader:         app.Reader,
		Dashboard:      app.Dashboard,
		Users:          app.Users,
		Countries:      countryClient,
		Audit:          app.Audit,
		AuthService:    app.Auth,
		AuthController: authController,
		SessionManager: sessionManager,
		CSRFSecret:     csrfKey(cfg.Auth.SessionSecret),
		SecureCookies:  cfg.Auth.SecureCookies,
		MaxUploadBytes: cfg.Uploads.MaxUploadMB << 20,
		Version:        version,
	})

	onShutdown := func(ctx context.Context) {
		sweeper.Stop()
		authController.Stop()
		if taskClient != nil {
			taskClient.Stop(ctx)
		}
		bgCancel()
	}

	Serve(router, cfg, onShutdown)
}
