package audit

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/libmanage/internal/entities"
)

const (
	DefaultPageSize    = 20
	maxDescriptionSize = 500
)

// Service records staff actions: catalog deletions, review moderation and
// user management.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	EventType entities.AuditEventType `form:"type"`
	ActorID   uint                    `form:"actor_id"`
}

type EventPage struct {
	Events     []entities.AuditEvent `json:"events"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}

// Record stores event. Errors are logged and never returned. A nil Service
// records nothing.
func (s *Service) Record(ctx context.Context, event *entities.AuditEvent) {
	if s == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	event.Description = truncate(event.Description, maxDescriptionSize)
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		log.Printf("Failed to record audit event %s: %v", event.Action, err)
	}
}

// List returns events newest first.
func (s *Service) List(ctx context.Context, filter Filter, page, pageSize int) (*EventPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	query := s.db.WithContext(ctx).Model(&entities.AuditEvent{})
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	if filter.ActorID > 0 {
		query = query.Where("actor_id = ?", filter.ActorID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count audit events: %w", err)
	}

	events := []entities.AuditEvent{}
	err := query.Order("created_at DESC, id DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}

	return &EventPage{
		Events:     events,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}, nil
}

// DeleteOldEvents removes events recorded more than retention ago.
func (s *Service) DeleteOldEvents(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-retention)
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&entities.AuditEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete audit events: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
