package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QueryAudit records what the engine understood for one query and how many rows it returned.
type QueryAudit struct {
	AuditID     uuid.UUID      `gorm:"column:audit_id;type:uuid;primaryKey" json:"audit_id"`
	TraceID     string         `gorm:"column:trace_id;type:varchar(64)" json:"trace_id"`
	SessionID   string         `gorm:"column:session_id;type:varchar(128)" json:"session_id,omitempty"`
	Text        string         `gorm:"column:text;not null" json:"text"`
	Intent      Intent         `gorm:"column:intent;type:varchar(16);not null" json:"intent"`
	Filter      datatypes.JSON `gorm:"column:filter;type:json;not null" json:"filter"`
	Warnings    datatypes.JSON `gorm:"column:warnings;type:json" json:"warnings"`
	ResultCount int            `gorm:"column:result_count" json:"result_count"`
	Refused     bool           `gorm:"column:refused" json:"refused"`
	AsOf        time.Time      `gorm:"column:as_of" json:"as_of"`
	DurationMs  int64          `gorm:"column:duration_ms" json:"duration_ms"`
	CreatedAt   time.Time      `gorm:"column:createdAt" json:"createdAt"`
}

func (QueryAudit) TableName() string {
	return "query_audits"
}

func (q *QueryAudit) BeforeCreate(tx *gorm.DB) error {
	if q.AuditID == uuid.Nil {
		q.AuditID = uuid.New()
	}
	return nil
}
