// Package producer defines the interface for shipping audit records to a broker (e.g. Kafka).
package producer

import (
	"context"

	"escrow-sentinel/internal/audit/domain"
)

// Producer ships audit records. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Write sends a single record. Implementations may block briefly.
	// Returns an error only on write failure; the audit logger logs and ignores it.
	Write(ctx context.Context, rec *domain.Record) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
