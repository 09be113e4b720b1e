package query

import (
	"context"
	"encoding/json"
	"time"

	"fit-atlas/internal/domain"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditRecorder persists one record per answered or refused query.
type AuditRecorder interface {
	Record(ctx context.Context, a *domain.QueryAudit) error
}

// GormAudit writes audit rows to the query_audits table.
type GormAudit struct {
	DB *gorm.DB
}

func (g *GormAudit) Record(ctx context.Context, a *domain.QueryAudit) error {
	return g.DB.WithContext(ctx).Create(a).Error
}

// Recent returns the newest audit rows first.
func (g *GormAudit) Recent(ctx context.Context, limit int) ([]domain.QueryAudit, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []domain.QueryAudit
	err := g.DB.WithContext(ctx).Order(`"createdAt" DESC`).Limit(limit).Find(&rows).Error
	return rows, err
}

func newAudit(req Request, resp *Response, duration time.Duration) *domain.QueryAudit {
	filter, _ := json.Marshal(resp.Filter)
	warnings, _ := json.Marshal(resp.Warnings)
	return &domain.QueryAudit{
		TraceID:     req.TraceID,
		SessionID:   req.SessionID,
		Text:        req.Text,
		Intent:      resp.Intent,
		Filter:      datatypes.JSON(filter),
		Warnings:    datatypes.JSON(warnings),
		ResultCount: resp.TotalMatches,
		Refused:     resp.Refused,
		AsOf:        resp.AsOf,
		DurationMs:  duration.Milliseconds(),
		CreatedAt:   time.Now().UTC(),
	}
}
