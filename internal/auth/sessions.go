package auth

import (
	"encoding/gob"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"gorm.io/gorm"

	"github.com/mrlokans/libmanage/internal/config"
	"github.com/mrlokans/libmanage/internal/entities"
)

const (
	SessionKeyUserID  = "user_id"
	SessionKeyRole    = "role"
	SessionKeyLoginAt = "login_at"
)

const sessionsTableDDL = `CREATE TABLE IF NOT EXISTS sessions (
	token TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	expiry REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry);`

func init() {
	gob.Register(entities.UserRole(""))
	gob.Register(time.Time{})
}

// SessionManager is the cookie session store of signed-in members.
type SessionManager struct {
	*scs.SessionManager
}

// NewSessionManager keeps sessions in the catalog database when it is
// SQLite and in process memory otherwise.
func NewSessionManager(db *gorm.DB, cfg config.Auth) (*SessionManager, error) {
	sm := scs.New()

	if db.Dialector.Name() == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		if _, err := sqlDB.Exec(sessionsTableDDL); err != nil {
			return nil, fmt.Errorf("failed to create sessions table: %w", err)
		}
		sm.Store = sqlite3store.New(sqlDB)
	} else {
		log.Printf("[AUTH] Sessions are kept in memory for the %s driver", db.Dialector.Name())
		sm.Store = memstore.New()
	}

	sm.Lifetime = cfg.SessionLifetime
	sm.IdleTimeout = cfg.SessionLifetime / 2
	sm.Cookie.Name = "session"
	sm.Cookie.HttpOnly = true
	sm.Cookie.Secure = cfg.SecureCookies
	sm.Cookie.SameSite = http.SameSiteStrictMode
	sm.Cookie.Path = "/"

	return &SessionManager{SessionManager: sm}, nil
}

// CreateSession signs user in on the current request. The token is renewed
// first so a pre-login session id is never reused.
func (sm *SessionManager) CreateSession(r *http.Request, user *entities.User) error {
	ctx := r.Context()
	if err := sm.RenewToken(ctx); err != nil {
		return err
	}
	sm.Put(ctx, SessionKeyUserID, int(user.ID))
	sm.Put(ctx, SessionKeyRole, user.Role)
	sm.Put(ctx, SessionKeyLoginAt, time.Now().UTC())
	return nil
}

func (sm *SessionManager) DestroySession(r *http.Request) error {
	return sm.Destroy(r.Context())
}

// GetUserID returns 0 for anonymous sessions.
func (sm *SessionManager) GetUserID(r *http.Request) uint {
	return uint(sm.GetInt(r.Context(), SessionKeyUserID))
}

func (sm *SessionManager) IsAuthenticated(r *http.Request) bool {
	return sm.GetUserID(r) != 0
}
