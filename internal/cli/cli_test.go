package cli

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/libmanage/internal/config"
	"github.com/mrlokans/libmanage/internal/entities"
	"github.com/mrlokans/libmanage/internal/entrypoint"
)

func setupTestApp(t *testing.T) *entrypoint.App {
	t.Helper()
	dbPath := "./test_cli_" + t.Name() + ".db"
	app, err := entrypoint.NewApp(&config.Config{
		Database: config.Database{Driver: config.DatabaseDriverSQLite, Path: dbPath},
		Uploads:  config.Uploads{Root: t.TempDir()},
		Auth:     config.Auth{BcryptCost: 4, TokenExpiry: time.Hour},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		app.Close()
		os.Remove(dbPath)
	})
	return app
}

func TestCreateUserCommand_ParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"valid", []string{"-username", "alice", "-email", "alice@example.com", "-role", "manager"}, false},
		{"default role", []string{"-username", "alice", "-email", "alice@example.com"}, false},
		{"missing email", []string{"-username", "alice"}, true},
		{"unknown role", []string{"-username", "alice", "-email", "a@example.com", "-role", "owner"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewCreateUserCommand().ParseFlags(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateUserCommand_Create(t *testing.T) {
	app := setupTestApp(t)
	ctx := context.Background()
	var out bytes.Buffer
	cmd := &CreateUserCommand{Username: "alice", Email: "alice@example.com", Role: "manager", out: &out}

	require.NoError(t, cmd.create(ctx, app, "correct-horse-battery"))

	user, err := app.Users.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, entities.UserRoleManager, user.Role)
	assert.Contains(t, out.String(), `"alice"`)

	var events int64
	require.NoError(t, app.DB.DB.Model(&entities.AuditEvent{}).Where("action = ? AND actor_id = 0", "user_create").Count(&events).Error)
	assert.Equal(t, int64(1), events)

	err = cmd.create(ctx, app, "short")
	assert.Error(t, err)
}

func TestSeedCommand_Seed(t *testing.T) {
	app := setupTestApp(t)
	ctx := context.Background()
	var out bytes.Buffer
	cmd := &SeedCommand{out: &out}

	require.NoError(t, cmd.seed(ctx, app))

	for _, acc := range demoAccounts {
		user, err := app.Users.GetUserByUsername(ctx, acc.username)
		require.NoError(t, err, acc.username)
		assert.Equal(t, acc.role, user.Role)
	}
	assert.Contains(t, out.String(), "placeholder images missing")

	var books, authors int64
	require.NoError(t, app.DB.DB.Model(&entities.Book{}).Count(&books).Error)
	require.NoError(t, app.DB.DB.Model(&entities.Author{}).Count(&authors).Error)
	assert.Equal(t, int64(2), books)
	assert.Equal(t, int64(3), authors)

	// Seeding twice leaves existing data alone.
	out.Reset()
	require.NoError(t, cmd.seed(ctx, app))
	assert.Equal(t, 3, strings.Count(out.String(), "already exists"))
	assert.Contains(t, out.String(), "Catalog is not empty")
	require.NoError(t, app.DB.DB.Model(&entities.Book{}).Count(&books).Error)
	assert.Equal(t, int64(2), books)
}

func TestSeedCommand_SharedPassword(t *testing.T) {
	app := setupTestApp(t)
	ctx := context.Background()
	cmd := &SeedCommand{Password: "demo-password-123", SkipCatalog: true, out: &bytes.Buffer{}}

	require.NoError(t, cmd.seed(ctx, app))

	user, err := app.Auth.Authenticate(ctx, "manager", "demo-password-123")
	require.NoError(t, err)
	assert.Equal(t, entities.UserRoleManager, user.Role)

	var books int64
	require.NoError(t, app.DB.DB.Model(&entities.Book{}).Count(&books).Error)
	assert.Zero(t, books)
}

func TestSeedCommand_ParseFlagsRejectsWeakPassword(t *testing.T) {
	err := NewSeedCommand().ParseFlags([]string{"-password", "short"})
	assert.Error(t, err)
}

func TestSweepOverdueCommand_Sweep(t *testing.T) {
	app := setupTestApp(t)
	ctx := context.Background()
	var out bytes.Buffer
	require.NoError(t, (&SeedCommand{Password: "demo-password-123", out: &bytes.Buffer{}}).seed(ctx, app))

	user, err := app.Users.GetUserByUsername(ctx, "user")
	require.NoError(t, err)
	var book entities.Book
	require.NoError(t, app.DB.DB.First(&book).Error)
	taken := time.Now().UTC().Add(-20 * 24 * time.Hour)
	require.NoError(t, app.DB.DB.Create(&entities.Borrow{
		UserID: user.ID, BookID: book.ID, DateTaken: taken, DateDue: taken.Add(entities.LoanPeriod),
	}).Error)

	cmd := &SweepOverdueCommand{out: &out}
	require.NoError(t, cmd.sweep(ctx, app, time.Now().UTC()))

	assert.Equal(t, "Closed 1 overdue borrows\n", out.String())
}
