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

package apierr

import (
	"errors"
	"fmt"
)

// Wrap creates a new error that wraps err with additional context.
// If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf creates a new error that wraps err with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree matching target's type.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Kind classifies err into one of the five taxonomy kinds for logging
// decisions. Returns "unknown" for errors that were never wrapped in one
// of this package's types.
func Kind(err error) string {
	var sysErr *SystemError
	var inputErr *InputError
	var protoErr *ProtocolError
	var ciErr *CIError
	var intErr *InternalError

	switch {
	case errors.As(err, &sysErr):
		return "system"
	case errors.As(err, &inputErr):
		return "input"
	case errors.As(err, &protoErr):
		return "protocol"
	case errors.As(err, &ciErr):
		return "ci"
	case errors.As(err, &intErr):
		return "internal"
	default:
		return "unknown"
	}
}

// ShouldLogError reports whether err's kind warrants an error-level log line.
// Input errors are never logged at error level (they are caller mistakes,
// not daemon faults); everything else is.
func ShouldLogError(err error) bool {
	return Kind(err) != "input"
}
