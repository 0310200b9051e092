// Package auth signs library members in and decides what they may do.
//
// Two credentials are accepted on every request:
//   - a session cookie issued by the login endpoint (browser clients)
//   - an "Authorization: Bearer <jwt>" header issued by the token endpoint (API clients)
//
// Requests without credentials continue anonymously; routes that need a
// member are wrapped in RequireAuth or RequireRole. A member who has been
// deactivated is treated as anonymous and their session is destroyed.
//
// # Roles
//
//	admin    catalog, moderation, dashboard and user management
//	manager  catalog and moderation
//	user     borrowing, reviewing, reading and listening
//
// # Configuration
//
//	AUTH_SESSION_SECRET=<hex-32-bytes>  # Signs CSRF cookies and JWTs; generated if empty
//	AUTH_SESSION_LIFETIME=24h           # Session duration
//	AUTH_TOKEN_EXPIRY=720h              # JWT lifetime
//	AUTH_BCRYPT_COST=12                 # bcrypt cost factor
//	AUTH_SECURE_COOKIES=true            # HTTPS-only cookies
//
// # Usage
//
//	authService := auth.NewService(db, cfg.Auth)
//	authMiddleware := auth.NewMiddleware(authService, sessionManager)
//	router.Use(sessionManager.SessionLoadSave(), authMiddleware.Handler())
//
// Extract the member in handlers:
//
//	viewer := auth.ViewerID(c) // nil for anonymous requests
package auth
