package adapter

import (
	"context"
	"time"
)

type AuditSeverity string

const (
	AuditSeverityInfo    AuditSeverity = "info"
	AuditSeverityWarning AuditSeverity = "warning"
	AuditSeverityError   AuditSeverity = "error"
)

// AuditEvent is one structured activity record per lifecycle transition.
type AuditEvent struct {
	Actor       string // user identity or "system"
	Action      string // e.g. "payment.verify"
	Severity    AuditSeverity
	PaymentID   string
	Description string
	At          time.Time
}

// AuditRecorder is the write-only port to the activity-log collaborator.
type AuditRecorder interface {
	Record(ctx context.Context, e AuditEvent) error
}
