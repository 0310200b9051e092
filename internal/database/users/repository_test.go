package users

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/libmanage/internal/entities"
)

func setupTestDB(t *testing.T) (*Repository, *gorm.DB, func()) {
	dbPath := "./test_users_" + t.Name() + ".db"

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&entities.User{})
	require.NoError(t, err)

	repo := NewRepository(db)

	cleanup := func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
		os.Remove(dbPath)
	}

	return repo, db, cleanup
}

func createUser(t *testing.T, db *gorm.DB, username string, role entities.UserRole) *entities.User {
	t.Helper()
	user := &entities.User{
		Username:       username,
		Email:          username + "@example.com",
		Role:           role,
		ProfilePicture: "/uploads/pfps/user/DefaultUser.png",
		IsActive:       true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestRepository_GetUserByID(t *testing.T) {
	repo, db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	created := createUser(t, db, "reader", entities.UserRoleUser)

	user, err := repo.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "reader", user.Username)

	_, err = repo.GetUserByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRepository_ListActive(t *testing.T) {
	repo, db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		createUser(t, db, fmt.Sprintf("user%02d", i), entities.UserRoleUser)
	}
	gone := createUser(t, db, "zz-gone", entities.UserRoleUser)
	require.NoError(t, db.Model(gone).Update("is_active", false).Error)

	t.Run("first page", func(t *testing.T) {
		page, total, err := repo.ListActive(ctx, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(12), total)
		assert.Len(t, page, 10)
		assert.Equal(t, "user00", page[0].Username)
	})

	t.Run("last page excludes inactive users", func(t *testing.T) {
		page, _, err := repo.ListActive(ctx, 2, 10)
		require.NoError(t, err)
		require.Len(t, page, 2)
		for _, u := range page {
			assert.NotEqual(t, "zz-gone", u.Username)
		}
	})

	t.Run("rejects non-positive paging", func(t *testing.T) {
		_, _, err := repo.ListActive(ctx, 0, 10)
		assert.ErrorIs(t, err, ErrInvalidPageRange)
	})
}

func TestRepository_ChangeRole(t *testing.T) {
	repo, db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	user := createUser(t, db, "reader", entities.UserRoleUser)

	require.NoError(t, repo.ChangeRole(ctx, user.ID, entities.UserRoleManager))
	reloaded, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.UserRoleManager, reloaded.Role)

	assert.ErrorIs(t, repo.ChangeRole(ctx, user.ID, "superuser"), ErrInvalidRole)
	assert.ErrorIs(t, repo.ChangeRole(ctx, 9999, entities.UserRoleUser), ErrUserNotFound)
}

func TestRepository_Deactivate(t *testing.T) {
	repo, db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	admin := createUser(t, db, "admin", entities.UserRoleAdmin)
	reader := createUser(t, db, "reader", entities.UserRoleUser)

	assert.ErrorIs(t, repo.Deactivate(ctx, admin.ID), ErrAdminProtected)

	require.NoError(t, repo.Deactivate(ctx, reader.ID))
	reloaded, err := repo.GetUserByID(ctx, reader.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsActive)

	assert.ErrorIs(t, repo.Deactivate(ctx, 9999), ErrUserNotFound)
}
