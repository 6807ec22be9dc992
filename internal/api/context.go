package api

import (
	"context"

	"github.com/lei/screwpipe/internal/models"
	"github.com/lei/screwpipe/pkg/logger"
)

// contextKey is an unexported type for context keys to prevent collisions
type contextKey string

const (
	contextKeyRequestID contextKey = "request_id"
	contextKeyLogger    contextKey = "logger"
	contextKeyRequester contextKey = "requester"
)

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// GetLogger retrieves the logger from context
func GetLogger(ctx context.Context) *logger.Logger {
	if logger, ok := ctx.Value(contextKeyLogger).(*logger.Logger); ok {
		return logger
	}
	return nil
}

// GetRequester retrieves the resolved requester identity from context
func GetRequester(ctx context.Context) (models.Requester, bool) {
	r, ok := ctx.Value(contextKeyRequester).(models.Requester)
	return r, ok
}
