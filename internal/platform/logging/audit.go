package logging

import (
	"context"

	"go.uber.org/zap"
)

// Audit results.
const (
	AuditSuccess = "success"
	AuditFailure = "failure"
)

// AuditEvent describes a state change on a resource.
type AuditEvent struct {
	Action     string // e.g. "update", "upload_picture"
	Resource   string
	ResourceID string
	Result     string
	// Fields lists the attributes the action touched.
	Fields  []string
	Details map[string]any
}

// LogAudit writes ev at info level through the context logger.
func LogAudit(ctx context.Context, ev AuditEvent) {
	fields := []zap.Field{
		zap.String("audit.action", ev.Action),
		zap.String("audit.resource_type", ev.Resource),
		zap.String("audit.resource_id", ev.ResourceID),
		zap.String("audit.result", ev.Result),
	}
	if len(ev.Fields) > 0 {
		fields = append(fields, zap.Strings("audit.fields", ev.Fields))
	}
	if len(ev.Details) > 0 {
		fields = append(fields, zap.Any("audit.details", ev.Details))
	}
	LoggerFromContext(ctx).Info("Audit event", fields...)
}
