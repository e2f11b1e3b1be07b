// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"log/slog"
	"net/http"
	"time"
)

// RequestInfo describes an inbound HTTP request for logging purposes.
type RequestInfo struct {
	Method        string
	Path          string
	CorrelationID string
	RemoteAddr    string
}

// ResponseInfo describes the outcome of handling an HTTP request.
type ResponseInfo struct {
	Status     int
	Error      string
	DurationMs int64
}

// LogRequest logs an incoming HTTP request.
func LogRequest(logger *slog.Logger, req *RequestInfo) {
	attrs := []any{
		EventKey, "http_request",
		"method", req.Method,
		"path", req.Path,
		"remote", req.RemoteAddr,
	}

	if req.CorrelationID != "" {
		attrs = append(attrs, CorrelationIDKey, req.CorrelationID)
	}

	logger.Info("http request received", attrs...)
}

// LogResponse logs the outcome of an HTTP request.
func LogResponse(logger *slog.Logger, req *RequestInfo, resp *ResponseInfo) {
	attrs := []any{
		EventKey, "http_response",
		"method", req.Method,
		"path", req.Path,
		"status", resp.Status,
		DurationKey, resp.DurationMs,
		"remote", req.RemoteAddr,
	}

	if req.CorrelationID != "" {
		attrs = append(attrs, CorrelationIDKey, req.CorrelationID)
	}

	if resp.Error != "" {
		attrs = append(attrs, "error", resp.Error)
	}

	level := slog.LevelInfo
	message := "http request completed"
	if resp.Status >= 500 {
		level = slog.LevelError
		message = "http request failed"
	} else if resp.Status >= 400 {
		level = slog.LevelWarn
	}

	logger.Log(nil, level, message, attrs...)
}

// statusRecorder captures the status code written by a downstream handler,
// defaulting to 200 if WriteHeader is never called explicitly.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware returns an http.Handler wrapper that logs every request and
// response pair with matching start/end log lines.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			req := &RequestInfo{
				Method:     r.Method,
				Path:       r.URL.Path,
				RemoteAddr: r.RemoteAddr,
			}

			LogRequest(logger, req)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			LogResponse(logger, req, &ResponseInfo{
				Status:     rec.status,
				DurationMs: time.Since(start).Milliseconds(),
			})
		})
	}
}
