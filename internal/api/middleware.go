package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/lei/screwpipe/internal/config"
	"github.com/lei/screwpipe/internal/models"
	"github.com/lei/screwpipe/pkg/logger"
)

// AuthMiddleware resolves the caller's identity once at the boundary.
// Builds authenticate with "Bearer build:<id>:<secret>"; humans with an
// API key mapped to a username.
type AuthMiddleware struct {
	apiKeys     map[string]string // key -> username
	buildSecret string
	scmContext  string
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(keys []config.APIKey, buildSecret, scmContext string) *AuthMiddleware {
	keyMap := make(map[string]string)
	for _, k := range keys {
		keyMap[k.Key] = k.Name
	}
	return &AuthMiddleware{apiKeys: keyMap, buildSecret: buildSecret, scmContext: scmContext}
}

// Authenticate validates the Authorization header and stores the
// resolved Requester in the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := GetLogger(r.Context())

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if logger != nil {
				logger.Warn("authentication failed: missing authorization header")
			}
			respondError(w, r, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			if logger != nil {
				logger.Warn("authentication failed: invalid authorization format")
			}
			respondError(w, r, http.StatusUnauthorized, "invalid authorization format, expected 'Bearer <token>'")
			return
		}

		requester, ok := m.resolve(parts[1])
		if !ok {
			if logger != nil {
				logger.Warn("authentication failed: invalid token")
			}
			respondError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		if logger != nil {
			logger.Debug("authentication successful",
				"requester", requester.Display(),
				"is_build", requester.IsBuild())
		}

		ctx := context.WithValue(r.Context(), contextKeyRequester, requester)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolve maps a bearer token to a requester identity
func (m *AuthMiddleware) resolve(token string) (models.Requester, bool) {
	if strings.HasPrefix(token, "build:") {
		rest := strings.TrimPrefix(token, "build:")
		i := strings.IndexByte(rest, ':')
		if i < 0 || m.buildSecret == "" || rest[i+1:] != m.buildSecret {
			return models.Requester{}, false
		}
		id, err := strconv.ParseInt(rest[:i], 10, 64)
		if err != nil || id <= 0 {
			return models.Requester{}, false
		}
		return models.BuildRequester(id), true
	}

	if name, ok := m.apiKeys[token]; ok {
		return models.UserRequester(name, m.scmContext), true
	}
	return models.Requester{}, false
}

// LoggingMiddleware adds structured logging to all requests
type LoggingMiddleware struct {
	logger *logger.Logger
}

// NewLoggingMiddleware creates a new logging middleware
func NewLoggingMiddleware(logger *logger.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

// Handler wraps HTTP handlers with logging
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get request ID from chi's middleware
		requestID := middleware.GetReqID(r.Context())
		if requestID == "" {
			requestID = "unknown"
		}

		// Create request-scoped logger
		reqLogger := m.logger.With(
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
		)

		ctx := context.WithValue(r.Context(), contextKeyLogger, reqLogger)
		ctx = context.WithValue(ctx, contextKeyRequestID, requestID)

		// Wrap response writer to capture status and bytes
		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}

		reqLogger.Debug("request started",
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent())

		start := time.Now()
		defer func() {
			duration := time.Since(start)

			if wrapped.statusCode >= 500 {
				reqLogger.Error("request completed",
					"status", wrapped.statusCode,
					"duration_ms", duration.Milliseconds(),
					"bytes_written", wrapped.bytesWritten)
			} else if wrapped.statusCode >= 400 {
				reqLogger.Warn("request completed",
					"status", wrapped.statusCode,
					"duration_ms", duration.Milliseconds(),
					"bytes_written", wrapped.bytesWritten)
			} else {
				reqLogger.Info("request completed",
					"status", wrapped.statusCode,
					"duration_ms", duration.Milliseconds(),
					"bytes_written", wrapped.bytesWritten)
			}
		}()

		next.ServeHTTP(wrapped, r.WithContext(ctx))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code and bytes written
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}
