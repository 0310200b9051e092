package auth

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/libmanage/internal/entities"
)

const (
	ContextKeyUserID   = "auth_user_id"
	ContextKeyUsername = "auth_username"
	ContextKeyRole     = "auth_role"
	ContextKeyAuthType = "auth_type"
)

// AuthType indicates how the request was authenticated.
type AuthType string

const (
	AuthTypeAnonymous AuthType = "anonymous"
	AuthTypeSession   AuthType = "session"
	AuthTypeBearer    AuthType = "bearer"
)

// Middleware resolves the member behind a request.
type Middleware struct {
	service        *Service
	sessionManager *SessionManager
}

func NewMiddleware(service *Service, sessionManager *SessionManager) *Middleware {
	return &Middleware{service: service, sessionManager: sessionManager}
}

// Handler identifies the caller from a bearer token or the session cookie.
// It never rejects: unauthenticated requests continue as anonymous, and an
// invalid bearer token is answered with 401 so API clients notice.
func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			user, err := m.service.ValidateToken(c.Request.Context(), token)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
				return
			}
			setUserContext(c, user, AuthTypeBearer)
			c.Next()
			return
		}

		if user := m.trySessionAuth(c); user != nil {
			setUserContext(c, user, AuthTypeSession)
			c.Next()
			return
		}

		c.Set(ContextKeyAuthType, AuthTypeAnonymous)
		c.Next()
	}
}

// trySessionAuth returns the session's member. Sessions of deactivated or
// removed members are destroyed.
func (m *Middleware) trySessionAuth(c *gin.Context) *entities.User {
	if m.sessionManager == nil {
		return nil
	}
	userID := m.sessionManager.GetUserID(c.Request)
	if userID == 0 {
		return nil
	}

	user, err := m.service.ActiveUser(c.Request.Context(), userID)
	if errors.Is(err, ErrAccountDisabled) || errors.Is(err, ErrUserNotFound) {
		log.Printf("[AUTH] Signing out user %d: %v", userID, err)
		_ = m.sessionManager.DestroySession(c.Request)
		return nil
	}
	if err != nil {
		log.Printf("[AUTH] Failed to load session user %d: %v", userID, err)
		return nil
	}
	return user
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func setUserContext(c *gin.Context, user *entities.User, authType AuthType) {
	c.Set(ContextKeyUserID, user.ID)
	c.Set(ContextKeyUsername, user.Username)
	c.Set(ContextKeyRole, user.Role)
	c.Set(ContextKeyAuthType, authType)
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAuthenticated(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// RequireRole rejects anonymous requests with 401 and members holding none
// of roles with 403.
func RequireRole(roles ...entities.UserRole) gin.HandlerFunc {
	allowed := make(map[entities.UserRole]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		if !IsAuthenticated(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !allowed[GetUserRole(c)] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}
		c.Next()
	}
}

// GetUserID returns 0 for anonymous requests.
func GetUserID(c *gin.Context) uint {
	if id, ok := c.Get(ContextKeyUserID); ok {
		if userID, ok := id.(uint); ok {
			return userID
		}
	}
	return 0
}

// ViewerID is the signed-in member's id, or nil for anonymous requests.
func ViewerID(c *gin.Context) *uint {
	id := GetUserID(c)
	if id == 0 {
		return nil
	}
	return &id
}

func GetUsername(c *gin.Context) string {
	return c.GetString(ContextKeyUsername)
}

func GetUserRole(c *gin.Context) entities.UserRole {
	if r, ok := c.Get(ContextKeyRole); ok {
		if role, ok := r.(entities.UserRole); ok {
			return role
		}
	}
	return ""
}

func GetAuthType(c *gin.Context) AuthType {
	if t, ok := c.Get(ContextKeyAuthType); ok {
		if authType, ok := t.(AuthType); ok {
			return authType
		}
	}
	return AuthTypeAnonymous
}

// HasRole reports whether the caller holds one of roles.
func HasRole(c *gin.Context, roles ...entities.UserRole) bool {
	role := GetUserRole(c)
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func IsAuthenticated(c *gin.Context) bool {
	return GetUserID(c) != 0
}
