package model

import "time"

// AuditEvent records a join attempt or an admin action.
type AuditEvent struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Kind      string    `json:"kind" gorm:"size:32;not null;index"`
	Subject   string    `json:"subject" gorm:"size:100;not null"`
	Actor     string    `json:"actor" gorm:"size:32"`
	Outcome   string    `json:"outcome" gorm:"size:32;not null"`
	Detail    string    `json:"detail" gorm:"type:text"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index"`
}

func (AuditEvent) TableName() string { return "audit_events" }

const (
	AuditKindJoin          = "join"
	AuditKindLogin         = "login"
	AuditKindMappingCreate = "mapping_create"
	AuditKindMappingDelete = "mapping_delete"
	AuditKindLimitIncrease = "limit_increase"
	AuditKindLimitDecrease = "limit_decrease"
)

const (
	AuditStreamName     = "AUDIT"
	AuditStreamSubject  = "audit.events"
	AuditConsumerName   = "audit-writer"
	AuditStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
