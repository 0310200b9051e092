package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/libmanage/internal/audit"
	"github.com/mrlokans/libmanage/internal/auth"
	"github.com/mrlokans/libmanage/internal/entities"
)

// recordAction logs a successful staff action taken by the signed-in user.
func recordAction(c *gin.Context, log *audit.Service, eventType entities.AuditEventType, action, entityType string, entityID uint, description string) {
	log.Record(c.Request.Context(), &entities.AuditEvent{
		ActorID:     auth.GetUserID(c),
		EventType:   eventType,
		Action:      action,
		Description: description,
		EntityType:  entityType,
		EntityID:    &entityID,
		IPAddress:   c.ClientIP(),
	})
}

type AuditController struct {
	log *audit.Service
}

func NewAuditController(log *audit.Service) *AuditController {
	return &AuditController{log: log}
}

// List returns recorded staff actions. Query: type, actor_id, page, page_size.
func (ac *AuditController) List(c *gin.Context) {
	var filter audit.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondBadRequest(c, "invalid filter")
		return
	}
	page, pageSize, ok := parsePaging(c, audit.DefaultPageSize)
	if !ok {
		return
	}
	events, err := ac.log.List(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		respondServiceError(c, err, "list audit events")
		return
	}
	c.JSON(http.StatusOK, events)
}
