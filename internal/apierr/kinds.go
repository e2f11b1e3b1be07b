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

// Package apierr defines the daemon's error taxonomy: five kinds, each with
// a fixed HTTP status and logging discipline, so the API layer never has to
// string-match an error message to decide how to respond.
package apierr

import (
	"fmt"
	"net/http"
)

// SystemError wraps an OS call failure (fork, open, socket, fcntl).
// Logged with full context and surfaced to HTTP as 500; never retried in-process.
type SystemError struct {
	Op    string
	Cause error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("system error during %s: %v", e.Op, e.Cause)
}

func (e *SystemError) Unwrap() error { return e.Cause }

// HTTPStatus implements statusError.
func (e *SystemError) HTTPStatus() int { return http.StatusInternalServerError }

// InputError wraps a missing/invalid parameter, range violation, or duplicate.
// Returned to the caller as HTTP 400 or 404; never logged at error level.
type InputError struct {
	Field   string
	Message string
	// Status overrides the default 400 (used for 404 "not found" and 409 "duplicate").
	Status int
}

func (e *InputError) Error() string {
	// A NotFound's Field carries the resource type for logging context only;
	// the wire message stays the bare literal callers match against.
	if e.Status == http.StatusNotFound {
		return e.Message
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *InputError) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	return http.StatusBadRequest
}

// NotFound builds the canonical "not found" InputError (HTTP 404). resource
// and id are kept on Field as "resource:id" for logging but never appear
// in Error(), which always renders the bare "not found".
func NotFound(resource, id string) *InputError {
	return &InputError{Field: resource + ":" + id, Message: "not found", Status: http.StatusNotFound}
}

// Duplicate builds the canonical "duplicate" InputError (HTTP 409).
func Duplicate(resource, id string) *InputError {
	return &InputError{Field: resource, Message: "duplicate: " + id, Status: http.StatusConflict}
}

// ProtocolError wraps malformed JSON or an HTTP status mapping failure.
// Surfaced as HTTP 400; logged at warning.
type ProtocolError struct {
	Message string
	Cause   error
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("protocol error: %s", e.Message)
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

func (e *ProtocolError) HTTPStatus() int { return http.StatusBadRequest }

// CIError wraps a provider timeout, disconnection, or no-provider-available
// condition. These route through the lifecycle state machine rather than
// being surfaced directly as an HTTP error in most call sites; when they do
// reach the API layer (e.g. a synchronous CI status query) they map to 502.
type CIError struct {
	CI      string
	Message string
	Cause   error
}

func (e *CIError) Error() string {
	return fmt.Sprintf("ci %s: %s", e.CI, e.Message)
}

func (e *CIError) Unwrap() error { return e.Cause }

func (e *CIError) HTTPStatus() int { return http.StatusBadGateway }

// InternalError wraps an assertion failure, corruption, or not-implemented
// path. Logged at error level, surfaced as HTTP 500; no recovery attempted.
type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("internal error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("internal error: %s", e.Message)
}

func (e *InternalError) Unwrap() error { return e.Cause }

func (e *InternalError) HTTPStatus() int { return http.StatusInternalServerError }

// statusError is implemented by every Kind above; the API layer uses it to
// pick a response status without switching on concrete type.
type statusError interface {
	error
	HTTPStatus() int
}

// StatusCode returns the HTTP status associated with err's Kind, or 500 if
// err does not carry one (a bug — every error reaching the API boundary
// should be one of the five Kinds).
func StatusCode(err error) int {
	var se statusError
	if As(err, &se) {
		return se.HTTPStatus()
	}
	return http.StatusInternalServerError
}
