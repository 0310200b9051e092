package http

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/libmanage/internal/audit"
	"github.com/mrlokans/libmanage/internal/dashboard"
	"github.com/mrlokans/libmanage/internal/entities"
)

func TestAdminController_Dashboard(t *testing.T) {
	app := setupTestApp(t)
	app.physicalBook(t, "Dune", "9780441013593")
	_, adminToken := app.user(t, "admin", entities.UserRoleAdmin)

	w := app.doJSON(http.MethodGet, "/api/admin/dashboard", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)

	var summary dashboard.Summary
	decode(t, w, &summary)
	assert.Equal(t, int64(1), summary.PhysicalBooks)
	assert.Equal(t, int64(1), summary.TotalBooks)
	assert.Equal(t, int64(1), summary.TotalUsers)
	require.Len(t, summary.RecentBooks, 1)
	assert.Empty(t, summary.MostBorrowedBook)
}

func TestAdminController_Users(t *testing.T) {
	app := setupTestApp(t)
	admin, adminToken := app.user(t, "admin", entities.UserRoleAdmin)
	reader, readerToken := app.user(t, "reader", entities.UserRoleUser)

	w := app.doJSON(http.MethodGet, "/api/admin/users?page=1&page_size=10", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	var page dashboard.UserPage
	decode(t, w, &page)
	assert.Equal(t, int64(2), page.TotalCount)

	rolePath := "/api/admin/users/" + itoa(reader.ID) + "/role"

	t.Run("invalid role", func(t *testing.T) {
		w := app.doJSON(http.MethodPut, rolePath, changeRoleRequest{Role: "librarian"}, adminToken)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("promote to manager", func(t *testing.T) {
		w := app.doJSON(http.MethodPut, rolePath, changeRoleRequest{Role: "manager"}, adminToken)
		require.Equal(t, http.StatusOK, w.Code)

		updated, err := app.authSvc.GetUserByID(context.Background(), reader.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.UserRoleManager, updated.Role)
	})

	t.Run("admins cannot be deactivated", func(t *testing.T) {
		w := app.doJSON(http.MethodPost, "/api/admin/users/"+itoa(admin.ID)+"/deactivate", nil, adminToken)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("deactivated users lose access", func(t *testing.T) {
		w := app.doJSON(http.MethodPost, "/api/admin/users/"+itoa(reader.ID)+"/deactivate", nil, adminToken)
		require.Equal(t, http.StatusOK, w.Code)

		w = app.doJSON(http.MethodGet, "/api/borrows", nil, readerToken)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		w := app.doJSON(http.MethodPost, "/api/admin/users/999/deactivate", nil, adminToken)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAdminController_AuditLog(t *testing.T) {
	app := setupTestApp(t)
	admin, adminToken := app.user(t, "admin", entities.UserRoleAdmin)
	manager, managerToken := app.user(t, "manager", entities.UserRoleManager)
	reader, _ := app.user(t, "reader", entities.UserRoleUser)
	book := app.physicalBook(t, "Dune", "9780441013593")

	w := app.doJSON(http.MethodDelete, "/api/books/"+itoa(book.ID), nil, managerToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = app.doJSON(http.MethodPost, "/api/admin/users/"+itoa(reader.ID)+"/deactivate", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)

	// Failed actions are not recorded.
	w = app.doJSON(http.MethodDelete, "/api/books/999", nil, managerToken)
	require.Equal(t, http.StatusNotFound, w.Code)

	t.Run("managers cannot read the log", func(t *testing.T) {
		w := app.doJSON(http.MethodGet, "/api/admin/audit", nil, managerToken)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("all events", func(t *testing.T) {
		w := app.doJSON(http.MethodGet, "/api/admin/audit", nil, adminToken)
		require.Equal(t, http.StatusOK, w.Code)
		var page audit.EventPage
		decode(t, w, &page)
		assert.Equal(t, int64(2), page.Total)
	})

	t.Run("filtered by type", func(t *testing.T) {
		w := app.doJSON(http.MethodGet, "/api/admin/audit?type=catalog", nil, adminToken)
		require.Equal(t, http.StatusOK, w.Code)
		var page audit.EventPage
		decode(t, w, &page)
		require.Len(t, page.Events, 1)
		event := page.Events[0]
		assert.Equal(t, "book_delete", event.Action)
		assert.Equal(t, manager.ID, event.ActorID)
		require.NotNil(t, event.EntityID)
		assert.Equal(t, book.ID, *event.EntityID)
	})

	t.Run("filtered by actor", func(t *testing.T) {
		w := app.doJSON(http.MethodGet, "/api/admin/audit?actor_id="+itoa(admin.ID), nil, adminToken)
		require.Equal(t, http.StatusOK, w.Code)
		var page audit.EventPage
		decode(t, w, &page)
		require.Len(t, page.Events, 1)
		assert.Equal(t, "user_deactivate", page.Events[0].Action)
	})
}
