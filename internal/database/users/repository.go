// Package users provides database operations for user management.
//
// # Usage
//
//	repo := users.NewRepository(db)
//	page, total, err := repo.ListActive(ctx, 1, 10)
package users

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mrlokans/libmanage/internal/entities"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrAdminProtected   = errors.New("admin accounts cannot be deactivated")
	ErrInvalidRole      = errors.New("invalid role")
	ErrInvalidPageRange = errors.New("page and page size must be positive")
)

// Repository handles all user database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new users repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id uint) (*entities.User, error) {
	var user entities.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*entities.User, error) {
	var user entities.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListActive returns one page of active users ordered by username, plus the
// total number of active users.
func (r *Repository) ListActive(ctx context.Context, page, pageSize int) ([]entities.User, int64, error) {
	if page < 1 || pageSize < 1 {
		return nil, 0, ErrInvalidPageRange
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&entities.User{}).Where("is_active = ?", true).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count active users: %w", err)
	}

	var users []entities.User
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("username ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list active users: %w", err)
	}
	return users, total, nil
}

// ChangeRole assigns a new role to the user.
func (r *Repository) ChangeRole(ctx context.Context, id uint, role entities.UserRole) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	result := r.db.WithContext(ctx).Model(&entities.User{}).Where("id = ?", id).Update("role", role)
	if result.Error != nil {
		return fmt.Errorf("change role: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Deactivate marks the user inactive so they can no longer sign in.
// Admin accounts are refused.
func (r *Repository) Deactivate(ctx context.Context, id uint) error {
	user, err := r.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if user.Role == entities.UserRoleAdmin {
		return ErrAdminProtected
	}
	return r.db.WithContext(ctx).Model(user).Update("is_active", false).Error
}
