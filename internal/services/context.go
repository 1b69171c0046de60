package services

import "context"

type contextKey string

const (
	assetKey    contextKey = "asset_digest"
	stageKey    contextKey = "stage"
	executorKey contextKey = "executor_id"
	runIDKey    contextKey = "run_id"
)

// WithAssetDigest annotates context with the short digest of the active asset.
func WithAssetDigest(ctx context.Context, digest string) context.Context {
	if digest == "" {
		return ctx
	}
	return context.WithValue(ctx, assetKey, digest)
}

// AssetDigestFromContext extracts the asset digest if present.
func AssetDigestFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(assetKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the state-machine stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithExecutorID annotates context with the executor identity string.
func WithExecutorID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, executorKey, id)
}

// ExecutorIDFromContext returns the executor identity if present.
func ExecutorIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(executorKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRunID annotates context with a correlation identifier for one
// scheduler invocation.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the correlation identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
