package audit

import (
	"context"
	"log/slog"
)

// origin identifies this system in emitted audit events.
const origin = "PROFILE-BE"

// LogSink writes one structured log line per entry for external
// log-pipeline ingestion.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink writing to the given logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Emit(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		actor := []any{
			slog.String("role", string(e.ActorRole)),
		}
		if !e.ActorUserID.IsNil() {
			actor = append(actor, slog.String("user_id", e.ActorUserID.String()))
		}
		if e.ServiceName != "" {
			actor = append(actor, slog.String("service_name", e.ServiceName))
		}
		if e.ClientID != "" {
			actor = append(actor, slog.String("client_id", e.ClientID))
		}
		if e.IPAddress != "" {
			actor = append(actor, slog.String("ip_address", e.IPAddress))
		}
		if e.Username != "" {
			actor = append(actor, slog.String("user_name", e.Username))
		}

		target := []any{
			slog.String("id", e.TargetProfileID.String()),
			slog.String("type", e.TargetType),
		}
		if !e.TargetUserID.IsNil() {
			target = append(target, slog.String("user_id", e.TargetUserID.String()))
		}

		s.logger.LogAttrs(ctx, slog.LevelInfo, "audit event",
			slog.Group("audit_event",
				slog.String("origin", origin),
				slog.String("status", "SUCCESS"),
				slog.String("operation", string(e.Operation)),
				slog.Group("actor", actor...),
				slog.Group("target", target...),
				slog.Time("date_time", e.Timestamp.UTC()),
				slog.Int64("date_time_epoch", e.Timestamp.UnixMilli()),
			),
		)
	}
	return nil
}
