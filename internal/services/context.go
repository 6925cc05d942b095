package services

import "context"

type contextKey string

const (
	batchIDKey  contextKey = "batch_id"
	studyUIDKey contextKey = "study_uid"
)

// WithBatchID annotates context with the batch run identifier.
func WithBatchID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, batchIDKey, id)
}

// BatchIDFromContext extracts the batch run identifier if present.
func BatchIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(batchIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStudyUID annotates context with the study currently being handled.
func WithStudyUID(ctx context.Context, uid string) context.Context {
	if uid == "" {
		return ctx
	}
	return context.WithValue(ctx, studyUIDKey, uid)
}

// StudyUIDFromContext returns the study instance UID if present.
func StudyUIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(studyUIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
