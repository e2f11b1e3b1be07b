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

package config

import (
	"errors"
	"fmt"
)

var (
	errHomeRequired    = errors.New("config: HOME environment variable is required")
	errDataDirRequired = errors.New("config: data_dir must not be empty")
)

type portError struct {
	value string
	err   error
}

func (e *portError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("config: invalid port %q: %v", e.value, e.err)
	}
	return fmt.Sprintf("config: port %q out of range 1-65535", e.value)
}

func (e *portError) Unwrap() error {
	return e.err
}
