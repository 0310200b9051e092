package auth

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/libmanage/internal/config"
	"github.com/mrlokans/libmanage/internal/entities"
	"github.com/mrlokans/libmanage/internal/storage"
)

const testPassword = "correct-horse-battery"

func testAuthConfig() config.Auth {
	return config.Auth{
		SessionSecret:    "0123456789abcdef0123456789abcdef",
		SessionLifetime:  24 * time.Hour,
		TokenExpiry:      time.Hour,
		BcryptCost:       4,
		MaxLoginAttempts: 3,
		RateLimitWindow:  time.Minute,
		LockoutDuration:  time.Minute,
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dbPath := "./test_auth_" + strings.ReplaceAll(t.Name(), "/", "_") + ".db"

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&entities.User{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		os.Remove(dbPath)
	})
	return db
}

func TestService_CreateUser(t *testing.T) {
	svc := NewService(setupTestDB(t), testAuthConfig())
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		email    string
		password string
		role     entities.UserRole
		wantErr  error
	}{
		{"valid admin", "admin", "admin@example.com", testPassword, entities.UserRoleAdmin, nil},
		{"valid manager", "manager", "manager@example.com", testPassword, entities.UserRoleManager, nil},
		{"missing username", "", "x@example.com", testPassword, entities.UserRoleUser, ErrUsernameRequired},
		{"missing email", "someone", "", testPassword, entities.UserRoleUser, ErrEmailRequired},
		{"missing password", "someone", "x@example.com", "", entities.UserRoleUser, ErrPasswordRequired},
		{"password too short", "someone", "x@example.com", "short", entities.UserRoleUser, ErrPasswordTooShort},
		{"bad username", "a b", "x@example.com", testPassword, entities.UserRoleUser, ErrUsernameInvalid},
		{"bad email", "someone", "not-an-email", testPassword, entities.UserRoleUser, ErrEmailInvalid},
		{"unknown role", "someone", "x@example.com", testPassword, entities.UserRole("editor"), ErrInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := svc.CreateUser(ctx, tt.username, tt.email, tt.password, tt.role)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("CreateUser() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateUser() unexpected error = %v", err)
			}
			if user.Role != tt.role {
				t.Errorf("user.Role = %v, want %v", user.Role, tt.role)
			}
			if !user.IsActive {
				t.Error("new users should be active")
			}
			if user.ProfilePicture != storage.PlaceholderUser {
				t.Errorf("ProfilePicture = %q, want placeholder", user.ProfilePicture)
			}
			if user.PasswordHash == "" || user.PasswordHash == tt.password {
				t.Error("password should be stored hashed")
			}
		})
	}
}

func TestService_Register(t *testing.T) {
	svc := NewService(setupTestDB(t), testAuthConfig())
	ctx := context.Background()

	user, err := svc.Register(ctx, "reader", "Reader@Example.com", testPassword)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.Role != entities.UserRoleUser {
		t.Errorf("Role = %v, want user", user.Role)
	}
	if user.Email != "reader@example.com" {
		t.Errorf("Email = %q, want lower-cased", user.Email)
	}

	if _, err := svc.Register(ctx, "reader", "other@example.com", testPassword); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate username: got %v, want ErrUserExists", err)
	}
	if _, err := svc.Register(ctx, "other", "READER@example.com", testPassword); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate email: got %v, want ErrUserExists", err)
	}
}

func TestService_Authenticate(t *testing.T) {
	svc := NewService(setupTestDB(t), testAuthConfig())
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, "reader", "reader@example.com", testPassword, entities.UserRoleUser); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	tests := []struct {
		name     string
		login    string
		password string
		wantErr  error
	}{
		{"username", "reader", testPassword, nil},
		{"email", "reader@example.com", testPassword, nil},
		{"wrong password", "reader", "wrong-password-123", ErrInvalidPassword},
		{"unknown user", "nobody", testPassword, ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := svc.Authenticate(ctx, tt.login, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Authenticate() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && user.LastLoginAt == nil {
				t.Error("LastLoginAt should be set after a successful login")
			}
		})
	}
}

func TestService_Authenticate_Lockout(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, testAuthConfig())
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	if _, err := svc.CreateUser(ctx, "reader", "reader@example.com", testPassword, entities.UserRoleUser); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.Authenticate(ctx, "reader", "wrong-password-123"); !errors.Is(err, ErrInvalidPassword) {
			t.Fatalf("attempt %d: got %v", i, err)
		}
	}

	if _, err := svc.Authenticate(ctx, "reader", testPassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := svc.Authenticate(ctx, "reader", testPassword); err != nil {
		t.Fatalf("login after lockout expired: %v", err)
	}

	var user entities.User
	db.Where("username = ?", "reader").First(&user)
	if user.FailedLoginCount != 0 || user.LockedUntil != nil {
		t.Errorf("failed login state not reset: count=%d locked=%v", user.FailedLoginCount, user.LockedUntil)
	}
}

func TestService_Authenticate_Deactivated(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, testAuthConfig())
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "reader", "reader@example.com", testPassword, entities.UserRoleUser)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	db.Model(user).Update("is_active", false)

	if _, err := svc.Authenticate(ctx, "reader", testPassword); !errors.Is(err, ErrAccountDisabled) {
		t.Errorf("expected ErrAccountDisabled, got %v", err)
	}
	if _, err := svc.ActiveUser(ctx, user.ID); !errors.Is(err, ErrAccountDisabled) {
		t.Errorf("ActiveUser: expected ErrAccountDisabled, got %v", err)
	}
}

func TestService_Tokens(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, testAuthConfig())
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "reader", "reader@example.com", testPassword, entities.UserRoleUser)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	token, expiresAt, err := svc.IssueToken(ctx, user.ID)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if time.Until(expiresAt) > time.Hour || time.Until(expiresAt) < 59*time.Minute {
		t.Errorf("expiresAt = %v, want about an hour from now", expiresAt)
	}

	got, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("token resolved to user %d, want %d", got.ID, user.ID)
	}

	t.Run("tampered", func(t *testing.T) {
		if _, err := svc.ValidateToken(ctx, token+"x"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("got %v, want ErrInvalidToken", err)
		}
	})

	t.Run("other secret", func(t *testing.T) {
		cfg := testAuthConfig()
		cfg.SessionSecret = "another-secret-another-secret-00"
		other := NewService(db, cfg)
		if _, err := other.ValidateToken(ctx, token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("got %v, want ErrInvalidToken", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		svc.tokens.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { svc.tokens.now = time.Now }()
		if _, err := svc.ValidateToken(ctx, token); !errors.Is(err, ErrTokenExpired) {
			t.Errorf("got %v, want ErrTokenExpired", err)
		}
	})

	t.Run("deactivated owner", func(t *testing.T) {
		db.Model(user).Update("is_active", false)
		defer db.Model(user).Update("is_active", true)
		if _, err := svc.ValidateToken(ctx, token); !errors.Is(err, ErrAccountDisabled) {
			t.Errorf("got %v, want ErrAccountDisabled", err)
		}
		if _, _, err := svc.IssueToken(ctx, user.ID); !errors.Is(err, ErrAccountDisabled) {
			t.Errorf("IssueToken: got %v, want ErrAccountDisabled", err)
		}
	})

	t.Run("removed owner", func(t *testing.T) {
		ghost := &entities.User{ID: 999, Role: entities.UserRoleUser}
		ghostToken, _, err := svc.tokens.Issue(ghost)
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		if _, err := svc.ValidateToken(ctx, ghostToken); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("got %v, want ErrInvalidToken", err)
		}
	})
}

func TestService_ChangePassword(t *testing.T) {
	svc := NewService(setupTestDB(t), testAuthConfig())
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "reader", "reader@example.com", testPassword, entities.UserRoleUser)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	if err := svc.ChangePassword(ctx, user.ID, "wrong-password-123", "brand-new-password"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("wrong old password: got %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, testPassword, "short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("short new password: got %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, testPassword, "brand-new-password"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if _, err := svc.Authenticate(ctx, "reader", "brand-new-password"); err != nil {
		t.Errorf("login with new password: %v", err)
	}
}

func TestService_HasUsers(t *testing.T) {
	svc := NewService(setupTestDB(t), testAuthConfig())
	ctx := context.Background()

	has, err := svc.HasUsers(ctx)
	if err != nil || has {
		t.Fatalf("HasUsers() = %v, %v; want false", has, err)
	}
	if _, err := svc.CreateUser(ctx, "admin", "admin@example.com", testPassword, entities.UserRoleAdmin); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	if has, _ := svc.HasUsers(ctx); !has {
		t.Error("HasUsers() = false after creating a user")
	}
}
