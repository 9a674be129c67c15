package repository

import (
	"context"
	"time"

	"escrow-sentinel/internal/alerting/domain"
)

// AlertRepository stores alerts. Alerts are only removed by DeleteOlderThan or by capacity overflow.
type AlertRepository interface {
	Add(ctx context.Context, a *domain.Alert)
	Get(ctx context.Context, id string) (*domain.Alert, bool)
	// Update applies fn to the stored alert and returns the updated copy.
	Update(ctx context.Context, id string, fn func(*domain.Alert)) (*domain.Alert, bool)
	// Recent returns up to n alerts, newest first.
	Recent(ctx context.Context, n int) []*domain.Alert
	Summary(ctx context.Context) Summary
	DeleteOlderThan(ctx context.Context, cutoff time.Time) int
}

// MetricRepository stores write-once metric samples.
type MetricRepository interface {
	Add(ctx context.Context, m domain.Metric)
	// Recent returns up to n samples, newest first.
	Recent(ctx context.Context, n int) []domain.Metric
	DeleteOlderThan(ctx context.Context, cutoff time.Time) int
	Len(ctx context.Context) int
}

// Summary counts stored alerts.
type Summary struct {
	Total      int
	BySeverity map[domain.Severity]int
	Open       int
	Resolved   int
}
