package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/libmanage/internal/config"
	"github.com/mrlokans/libmanage/internal/entities"
	"github.com/mrlokans/libmanage/internal/storage"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,64}$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUserExists       = errors.New("user already exists")
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidRole      = errors.New("invalid role")
	ErrUsernameRequired = errors.New("username is required")
	ErrEmailRequired    = errors.New("email is required")
	ErrPasswordRequired = errors.New("password is required")
	ErrAccountLocked    = errors.New("account is locked due to too many failed login attempts")
	ErrAccountDisabled  = errors.New("account is deactivated")
	ErrUsernameInvalid  = errors.New("username must be 3-64 characters: letters, digits, dot, underscore or hyphen")
	ErrEmailInvalid     = errors.New("invalid email format")
)

const (
	defaultMaxFailedLogins = 5
	defaultLockout         = 30 * time.Minute
)

// Service registers and authenticates library members.
type Service struct {
	db     *gorm.DB
	config config.Auth
	tokens *TokenIssuer
	now    func() time.Time
}

func NewService(db *gorm.DB, cfg config.Auth) *Service {
	return &Service{
		db:     db,
		config: cfg,
		tokens: NewTokenIssuer(cfg.SessionSecret, cfg.TokenExpiry),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a member with the user role.
func (s *Service) Register(ctx context.Context, username, email, password string) (*entities.User, error) {
	return s.CreateUser(ctx, username, email, password, entities.UserRoleUser)
}

// CreateUser validates the input and stores a new active account.
func (s *Service) CreateUser(ctx context.Context, username, email, password string, role entities.UserRole) (*entities.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))

	switch {
	case username == "":
		return nil, ErrUsernameRequired
	case email == "":
		return nil, ErrEmailRequired
	case password == "":
		return nil, ErrPasswordRequired
	case !usernamePattern.MatchString(username):
		return nil, ErrUsernameInvalid
	case len(email) > 254 || !emailPattern.MatchString(email):
		return nil, ErrEmailInvalid
	case !role.Valid():
		return nil, ErrInvalidRole
	}

	db := s.db.WithContext(ctx)
	var existing int64
	if err := db.Model(&entities.User{}).Where("username = ? OR email = ?", username, email).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing > 0 {
		return nil, ErrUserExists
	}

	passwordHash, err := HashPassword(password, s.config.BcryptCost)
	if err != nil {
		return nil, err
	}

	user := &entities.User{
		Username:       username,
		Email:          email,
		PasswordHash:   passwordHash,
		Role:           role,
		ProfilePicture: storage.PlaceholderUser,
		IsActive:       true,
	}
	if err := db.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Authenticate checks credentials given a username or email. Accounts are
// locked after repeated failures and deactivated accounts are refused.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*entities.User, error) {
	db := s.db.WithContext(ctx)
	login = strings.TrimSpace(login)

	var user entities.User
	err := db.Where("username = ? OR email = ?", login, strings.ToLower(login)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	now := s.now()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		return nil, ErrAccountLocked
	}

	if err := CheckPassword(password, user.PasswordHash); err != nil {
		s.recordFailedLogin(db, &user)
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	err = db.Model(&user).Updates(map[string]any{
		"last_login_at":      now,
		"failed_login_count": 0,
		"locked_until":       nil,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	user.LastLoginAt = &now
	return &user, nil
}

func (s *Service) recordFailedLogin(db *gorm.DB, user *entities.User) {
	user.FailedLoginCount++
	updates := map[string]any{"failed_login_count": user.FailedLoginCount}

	threshold := s.config.MaxLoginAttempts
	if threshold <= 0 {
		threshold = defaultMaxFailedLogins
	}
	if user.FailedLoginCount >= threshold {
		lockout := s.config.LockoutDuration
		if lockout <= 0 {
			lockout = defaultLockout
		}
		updates["locked_until"] = s.now().Add(lockout)
	}

	db.Model(user).Updates(updates)
}

func (s *Service) GetUserByID(ctx context.Context, id uint) (*entities.User, error) {
	var user entities.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ActiveUser loads the user and fails with ErrAccountDisabled for
// deactivated accounts.
func (s *Service) ActiveUser(ctx context.Context, id uint) (*entities.User, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	return user, nil
}

// IssueToken creates an API token for an active user.
func (s *Service) IssueToken(ctx context.Context, userID uint) (string, time.Time, error) {
	user, err := s.ActiveUser(ctx, userID)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.tokens.Issue(user)
}

// ValidateToken verifies a bearer token and returns its active owner.
func (s *Service) ValidateToken(ctx context.Context, token string) (*entities.User, error) {
	userID, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	user, err := s.ActiveUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidToken
	}
	return user, err
}

func (s *Service) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := CheckPassword(oldPassword, user.PasswordHash); err != nil {
		return err
	}
	newHash, err := HashPassword(newPassword, s.config.BcryptCost)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(user).Update("password_hash", newHash).Error
}

// HasUsers reports whether any account exists.
func (s *Service) HasUsers(ctx context.Context) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&entities.User{}).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
