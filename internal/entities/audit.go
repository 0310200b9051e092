package entities

import "time"

type AuditEventType string

const (
	AuditEventCatalog    AuditEventType = "catalog"
	AuditEventModeration AuditEventType = "moderation"
	AuditEventUsers      AuditEventType = "users"
)

// AuditEvent records one staff action. ActorID is 0 for system actions.
type AuditEvent struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	ActorID     uint           `gorm:"index" json:"actor_id"`
	EventType   AuditEventType `gorm:"index;size:50" json:"event_type"`
	Action      string         `gorm:"size:100" json:"action"` // e.g. "book_delete", "user_role_change"
	Description string         `gorm:"size:500" json:"description"`
	EntityType  string         `gorm:"size:50" json:"entity_type"`
	EntityID    *uint          `gorm:"index" json:"entity_id,omitempty"`
	IPAddress   string         `gorm:"size:45" json:"ip_address,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}
