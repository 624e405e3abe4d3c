package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID is the standardized structured logging key for run identifiers.
	FieldRunID = "run_id"
	// FieldPlatform is the standardized structured logging key for the target platform.
	FieldPlatform = "platform"
	// FieldStage is the standardized structured logging key for stage names.
	FieldStage = "stage"
	// FieldJobIndex is the standardized structured logging key for a directive's position.
	FieldJobIndex = "job_index"
	// FieldSourceDir is the standardized structured logging key for a job's source directory.
	FieldSourceDir = "source_dir"
	// FieldEventType tags log records for machine filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries an actionable remediation suggestion.
	FieldErrorHint = "error_hint"
)

type contextKey int

const (
	runIDKey contextKey = iota
	platformKey
	stageKey
	jobIndexKey
	sourceDirKey
)

// WithRunID attaches a run identifier to the context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// WithPlatform attaches the target platform to the context.
func WithPlatform(ctx context.Context, platform string) context.Context {
	return context.WithValue(ctx, platformKey, platform)
}

// WithStage attaches the active stage name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// WithJob attaches a directive's index and source directory to the context.
func WithJob(ctx context.Context, index int, sourceDir string) context.Context {
	ctx = context.WithValue(ctx, jobIndexKey, index)
	return context.WithValue(ctx, sourceDirKey, sourceDir)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 5)
	if id, ok := ctx.Value(runIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if platform, ok := ctx.Value(platformKey).(string); ok && platform != "" {
		fields = append(fields, slog.String(FieldPlatform, platform))
	}
	if stage, ok := ctx.Value(stageKey).(string); ok && stage != "" {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if index, ok := ctx.Value(jobIndexKey).(int); ok {
		fields = append(fields, slog.Int(FieldJobIndex, index))
	}
	if dir, ok := ctx.Value(sourceDirKey).(string); ok && dir != "" {
		fields = append(fields, slog.String(FieldSourceDir, dir))
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
