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

package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduler_RunsEnabledTaskRepeatedly(t *testing.T) {
	var count int32
	s := New(5*time.Millisecond, nil)
	s.Register(Task{
		Name:     "tick",
		Enabled:  true,
		Interval: 5 * time.Millisecond,
		Fn:       func(ctx context.Context) { atomic.AddInt32(&count, 1) },
	})

	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	assert.True(t, atomic.LoadInt32(&count) >= 3, "expected several runs, got %d", count)
}

func TestScheduler_DisabledTaskNeverRuns(t *testing.T) {
	var count int32
	s := New(5*time.Millisecond, nil)
	s.Register(Task{
		Name:     "tick",
		Enabled:  false,
		Interval: 5 * time.Millisecond,
		Fn:       func(ctx context.Context) { atomic.AddInt32(&count, 1) },
	})

	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(0), atomic.LoadInt32(&count))
}

func TestScheduler_SetEnabledTogglesAtRuntime(t *testing.T) {
	var count int32
	s := New(5*time.Millisecond, nil)
	s.Register(Task{
		Name:     "tick",
		Enabled:  false,
		Interval: 5 * time.Millisecond,
		Fn:       func(ctx context.Context) { atomic.AddInt32(&count, 1) },
	})

	s.Start(context.Background())
	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&count))

	s.SetEnabled("tick", true)
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	assert.True(t, atomic.LoadInt32(&count) > 0)
}

func TestScheduler_PanicInTaskDoesNotStopOthers(t *testing.T) {
	var okCount int32
	s := New(5*time.Millisecond, nil)
	s.Register(Task{
		Name:     "boom",
		Enabled:  true,
		Interval: 5 * time.Millisecond,
		Fn:       func(ctx context.Context) { panic("boom") },
	})
	s.Register(Task{
		Name:     "ok",
		Enabled:  true,
		Interval: 5 * time.Millisecond,
		Fn:       func(ctx context.Context) { atomic.AddInt32(&okCount, 1) },
	})

	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	assert.True(t, atomic.LoadInt32(&okCount) > 0)
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s := New(5*time.Millisecond, nil)
	s.Start(context.Background())
	s.Stop()
	assert.NotPanics(t, func() { s.Stop() })
}

func TestScheduler_DoubleStartIsNoOp(t *testing.T) {
	s := New(5*time.Millisecond, nil)
	s.Start(context.Background())
	s.Start(context.Background())
	s.Stop()
}
