package auth

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/libmanage/internal/config"
	"github.com/mrlokans/libmanage/internal/entities"
)

// TokenPath issues API tokens from credentials; it is exempt from CSRF.
const TokenPath = "/api/auth/token"

type registerRequest struct {
	Username        string `json:"username" binding:"required"`
	Email           string `json:"email" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

type loginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthController serves registration, sign-in and token endpoints.
type AuthController struct {
	service        *Service
	sessionManager *SessionManager
	limiter        *LoginLimiter
}

func NewAuthController(service *Service, sessionManager *SessionManager, cfg config.Auth) *AuthController {
	return &AuthController{
		service:        service,
		sessionManager: sessionManager,
		limiter:        NewLoginLimiter(cfg.MaxLoginAttempts, cfg.RateLimitWindow),
	}
}

func (ac *AuthController) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/csrf", ac.CSRFToken)
	group.POST("/register", ac.Register)
	group.POST("/login", ac.Login)
	group.POST("/logout", ac.Logout)
	group.POST("/token", ac.Token)
	group.GET("/me", RequireAuth(), ac.Me)
	group.PUT("/password", RequireAuth(), ac.ChangePassword)
}

// Stop releases the limiter's cleanup goroutine.
func (ac *AuthController) Stop() {
	ac.limiter.Stop()
}

func (ac *AuthController) CSRFToken(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"csrf_token": GetCSRFToken(c), "header": CSRFTokenHeader})
}

func (ac *AuthController) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username, email, password and confirm_password are required"})
		return
	}
	if req.Password != req.ConfirmPassword {
		c.JSON(http.StatusBadRequest, gin.H{"error": "passwords do not match"})
		return
	}

	user, err := ac.service.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		respondAuthError(c, err)
		return
	}
	log.Printf("[AUTH] Registered user %s (id=%d)", user.Username, user.ID)

	if err := ac.sessionManager.CreateSession(c.Request, user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (ac *AuthController) Login(c *gin.Context) {
	user, ok := ac.authenticate(c)
	if !ok {
		return
	}
	if err := ac.sessionManager.CreateSession(c.Request, user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// Token issues a bearer token. A signed-in caller gets one for their own
// account; anyone else has to send credentials.
func (ac *AuthController) Token(c *gin.Context) {
	userID := GetUserID(c)
	if userID == 0 {
		user, ok := ac.authenticate(c)
		if !ok {
			return
		}
		userID = user.ID
	}

	token, expiresAt, err := ac.service.IssueToken(c.Request.Context(), userID)
	if err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{Token: token, TokenType: "Bearer", ExpiresAt: expiresAt})
}

// authenticate checks the JSON credentials under the login throttle and
// writes the error response itself.
func (ac *AuthController) authenticate(c *gin.Context) (*entities.User, bool) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "login and password are required"})
		return nil, false
	}

	ip := c.ClientIP()
	if allowed, retryAfter := ac.limiter.Allow(ip, req.Login); !allowed {
		c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "too many login attempts",
			"retry_after": retryAfter.String(),
		})
		return nil, false
	}

	user, err := ac.service.Authenticate(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrInvalidPassword) {
			ac.limiter.RecordFailure(ip, req.Login)
		}
		respondAuthError(c, err)
		return nil, false
	}
	ac.limiter.RecordSuccess(ip, req.Login)
	return user, true
}

func (ac *AuthController) Logout(c *gin.Context) {
	if err := ac.sessionManager.DestroySession(c.Request); err != nil {
		log.Printf("[AUTH] Failed to destroy session: %v", err)
	}
	c.Status(http.StatusNoContent)
}

func (ac *AuthController) Me(c *gin.Context) {
	user, err := ac.service.GetUserByID(c.Request.Context(), GetUserID(c))
	if err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (ac *AuthController) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "old_password and new_password are required"})
		return
	}
	if err := ac.service.ChangePassword(c.Request.Context(), GetUserID(c), req.OldPassword, req.NewPassword); err != nil {
		respondAuthError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func respondAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrInvalidPassword):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
	case errors.Is(err, ErrAccountLocked):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, ErrAccountDisabled):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrUsernameRequired), errors.Is(err, ErrEmailRequired),
		errors.Is(err, ErrPasswordRequired), errors.Is(err, ErrUsernameInvalid),
		errors.Is(err, ErrEmailInvalid), errors.Is(err, ErrInvalidRole),
		errors.Is(err, ErrPasswordTooShort), errors.Is(err, ErrPasswordTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("[AUTH] Unexpected error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
