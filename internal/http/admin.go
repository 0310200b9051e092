package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/libmanage/internal/audit"
	"github.com/mrlokans/libmanage/internal/dashboard"
	"github.com/mrlokans/libmanage/internal/database/users"
	"github.com/mrlokans/libmanage/internal/entities"
)

const defaultUsersPageSize = 10

type changeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// AdminController serves the dashboard and user management.
type AdminController struct {
	dashboard *dashboard.Service
	users     *users.Repository
	auditLog  *audit.Service
}

func NewAdminController(dash *dashboard.Service, userRepo *users.Repository, auditLog *audit.Service) *AdminController {
	return &AdminController{dashboard: dash, users: userRepo, auditLog: auditLog}
}

func (ac *AdminController) Dashboard(c *gin.Context) {
	summary, err := ac.dashboard.Dashboard(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "dashboard")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Users lists active users. Query: page, page_size.
func (ac *AdminController) Users(c *gin.Context) {
	page, pageSize, ok := parsePaging(c, defaultUsersPageSize)
	if !ok {
		return
	}
	result, err := ac.dashboard.Users(c.Request.Context(), page, pageSize)
	if err != nil {
		respondServiceError(c, err, "list users")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (ac *AdminController) ChangeRole(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "role is required")
		return
	}
	if err := ac.users.ChangeRole(c.Request.Context(), id, entities.UserRole(req.Role)); err != nil {
		respondServiceError(c, err, "change role")
		return
	}
	recordAction(c, ac.auditLog, entities.AuditEventUsers, "user_role_change", "user", id, fmt.Sprintf("Changed role to %s", req.Role))
	respondSuccess(c, "role updated")
}

// Deactivate signs the user out on their next request and blocks new
// sign-ins. Admin accounts cannot be deactivated.
func (ac *AdminController) Deactivate(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := ac.users.Deactivate(c.Request.Context(), id); err != nil {
		respondServiceError(c, err, "deactivate user")
		return
	}
	recordAction(c, ac.auditLog, entities.AuditEventUsers, "user_deactivate", "user", id, "Deactivated user")
	respondSuccess(c, "user deactivated")
}
