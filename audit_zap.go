package ward

import (
	"context"

	"go.uber.org/zap"
)

// ZapSink is an [AuditSink] that writes each event as one structured log
// entry. Pair it with a zap JSON core to ship audit events through an
// existing log pipeline instead of a dedicated audit backend.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink wraps a zap logger as an audit sink. A nil logger falls back to
// zap.NewNop, keeping the sink safe to install unconditionally.
func NewZapSink(log *zap.Logger) *ZapSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapSink{log: log}
}

// Emit implements [AuditSink].
func (s *ZapSink) Emit(_ context.Context, ev AuditEvent) error {
	fields := make([]zap.Field, 0, 8)
	fields = append(fields,
		zap.Time("ts", ev.Timestamp),
		zap.String("event", ev.Type),
		zap.Bool("success", ev.Success),
	)
	if ev.AccountID != "" {
		fields = append(fields, zap.String("account_id", ev.AccountID))
	}
	if ev.IP != "" {
		fields = append(fields, zap.String("ip", ev.IP))
	}
	if ev.ClientID != "" {
		fields = append(fields, zap.String("client_id", ev.ClientID))
	}
	if ev.Error != "" {
		fields = append(fields, zap.String("reason", ev.Error))
	}
	if len(ev.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", ev.Metadata))
	}

	s.log.Info("audit", fields...)
	return nil
}
