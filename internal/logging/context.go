package logging

import (
	"context"
	"log/slog"

	"prism/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldAssetDigest is the standardized structured logging key for asset digests.
	FieldAssetDigest = "asset_digest"
	// FieldStage is the standardized structured logging key for state-machine stage names.
	FieldStage = "stage"
	// FieldExecutorID is the standardized structured logging key for executor identities.
	FieldExecutorID = "executor_id"
	// FieldRunID is the standardized structured logging key for scheduler run correlation ids.
	FieldRunID = "run_id"
	// FieldStreamRole is the standardized structured logging key for stream roles (ref/dis).
	FieldStreamRole = "stream_role"
	// FieldEventType tags log records for downstream filtering.
	FieldEventType = "event_type"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if digest, ok := services.AssetDigestFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldAssetDigest, digest))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if id, ok := services.ExecutorIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldExecutorID, id))
	}
	if rid, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from
// the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
