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
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodePerKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"system", &SystemError{Op: "fork", Cause: errors.New("boom")}, http.StatusInternalServerError},
		{"input-default", &InputError{Field: "template", Message: "required"}, http.StatusBadRequest},
		{"not-found", NotFound("workflow", "demo_t1"), http.StatusNotFound},
		{"duplicate", Duplicate("workflow", "demo_t1"), http.StatusConflict},
		{"protocol", &ProtocolError{Message: "bad json"}, http.StatusBadRequest},
		{"ci", &CIError{CI: "builder-1", Message: "timeout"}, http.StatusBadGateway},
		{"internal", &InternalError{Message: "assertion failed"}, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusCode(tc.err))
		})
	}
}

func TestKindClassification(t *testing.T) {
	assert.Equal(t, "input", Kind(NotFound("workflow", "x")))
	assert.Equal(t, "ci", Kind(&CIError{CI: "x", Message: "down"}))
	assert.Equal(t, "unknown", Kind(errors.New("plain")))
}

func TestShouldLogError(t *testing.T) {
	assert.False(t, ShouldLogError(NotFound("workflow", "x")))
	assert.True(t, ShouldLogError(&InternalError{Message: "oops"}))
	assert.True(t, ShouldLogError(&SystemError{Op: "open", Cause: errors.New("eperm")}))
}

func TestWrapNilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
}

func TestUnwrapChain(t *testing.T) {
	cause := errors.New("disk full")
	err := &SystemError{Op: "write", Cause: cause}
	assert.ErrorIs(t, err, cause)
}
