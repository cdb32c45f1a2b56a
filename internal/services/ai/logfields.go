package ai

import (
	"context"

	"github.com/benvon/family-planner/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	previewLength      = 200
	debugPreviewLength = 10000
)

type jobKey struct{}

type jobInfo struct {
	jobID  uuid.UUID
	userID uuid.UUID
}

// WithJob tags ctx with the queue job driving a generation so provider
// logs can be joined with worker logs
func WithJob(ctx context.Context, jobID, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, jobKey{}, jobInfo{jobID: jobID, userID: userID})
}

// callFields are the fields logged with every provider call
func callFields(ctx context.Context, provider, model string, req GenerateRequest) []zap.Field {
	fields := []zap.Field{
		zap.String("operation", "generate_destination"),
		zap.String("provider", provider),
		zap.String("model", model),
		logger.Text("destination", req.Name),
	}
	if info, ok := ctx.Value(jobKey{}).(jobInfo); ok {
		fields = append(fields, zap.String("job_id", info.jobID.String()))
		if info.userID != uuid.Nil {
			fields = append(fields, zap.String("user_id", info.userID.String()))
		}
	}
	return fields
}

// preview cuts prompt or response text for debug logs
func preview(s string, debug bool) string {
	if debug {
		return logger.Clean(s, debugPreviewLength)
	}
	return logger.Clean(s, previewLength)
}
