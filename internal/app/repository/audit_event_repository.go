package repository

import (
	"context"

	"github.com/sifan077/InviteGate/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AuditEventRepository defines the data access contract for audit events.
type AuditEventRepository interface {
	Create(ctx context.Context, event *model.AuditEvent) error
	ListRecent(ctx context.Context, limit int) ([]model.AuditEvent, error)
}

type auditEventRepository struct {
	db *gorm.DB
}

// NewAuditEventRepository returns a GORM-backed AuditEventRepository.
func NewAuditEventRepository(db *gorm.DB) AuditEventRepository {
	return &auditEventRepository{db: db}
}

// Create ignores duplicates so JetStream redeliveries stay idempotent.
func (r *auditEventRepository) Create(ctx context.Context, event *model.AuditEvent) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(event).Error
}

func (r *auditEventRepository) ListRecent(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	var result []model.AuditEvent
	if err := r.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}
