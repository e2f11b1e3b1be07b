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

// Package broker holds the per-workflow input/output message queues that
// let HTTP clients exchange data with a running workflow executor without
// either side blocking on the other's schedule.
package broker

import (
	"sync"
	"time"

	"github.com/ckoons/argo/internal/apierr"
)

// DefaultCapacity bounds each workflow's input and output queue.
const DefaultCapacity = 256

// Message is one piece of data moved through a channel queue.
type Message struct {
	Data      []byte    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type channelPair struct {
	mu       sync.Mutex
	input    []Message
	output   []Message
	capacity int
}

// Broker holds lazily-created input/output queues, one pair per
// in-flight workflow. Queues are created by Open, which the supervisor
// calls when it starts the workflow, and torn down when the workflow's
// supervisor entry closes; pushes and pops for a workflow without an open
// pair return a not-found error.
type Broker struct {
	mu       sync.Mutex
	channels map[string]*channelPair
	capacity int
}

// New creates a Broker whose queues are bounded at capacity messages
// each. A zero capacity uses DefaultCapacity.
func New(capacity int) *Broker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Broker{channels: make(map[string]*channelPair), capacity: capacity}
}

// Open lazily creates the queue pair for workflowID. Safe to call more
// than once; subsequent calls are no-ops. Satisfies supervisor.Broker.
func (b *Broker) Open(workflowID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.channels[workflowID]; ok {
		return
	}
	b.channels[workflowID] = &channelPair{capacity: b.capacity}
}

// Close discards workflowID's queues. Any buffered, undelivered messages
// are dropped. Satisfies supervisor.Broker.
func (b *Broker) Close(workflowID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.channels, workflowID)
}

func (b *Broker) pair(workflowID string) (*channelPair, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.channels[workflowID]
	if !ok {
		return nil, apierr.NotFound("workflow channel", workflowID)
	}
	return p, nil
}

// PushInput appends data to workflowID's input queue (HTTP client to
// executor). Returns a 429 InputError when the queue is full.
func (b *Broker) PushInput(workflowID string, data []byte) error {
	p, err := b.pair(workflowID)
	if err != nil {
		return err
	}
	return p.push(&p.input, data)
}

// PushOutput appends data to workflowID's output queue (executor to
// HTTP client). Returns a 429 InputError when the queue is full.
func (b *Broker) PushOutput(workflowID string, data []byte) error {
	p, err := b.pair(workflowID)
	if err != nil {
		return err
	}
	return p.push(&p.output, data)
}

func (p *channelPair) push(queue *[]Message, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(*queue) >= p.capacity {
		return &apierr.InputError{Message: "channel queue is full", Status: 429}
	}
	*queue = append(*queue, Message{Data: data, Timestamp: time.Now()})
	return nil
}

// PopInput removes and returns the oldest buffered input message for
// workflowID. ok is false when the queue is empty.
func (b *Broker) PopInput(workflowID string) (msg Message, ok bool, err error) {
	p, err := b.pair(workflowID)
	if err != nil {
		return Message{}, false, err
	}
	msg, ok = p.pop(&p.input)
	return msg, ok, nil
}

// PopOutput removes and returns the oldest buffered output message for
// workflowID. ok is false when the queue is empty.
func (b *Broker) PopOutput(workflowID string) (msg Message, ok bool, err error) {
	p, err := b.pair(workflowID)
	if err != nil {
		return Message{}, false, err
	}
	msg, ok = p.pop(&p.output)
	return msg, ok, nil
}

func (p *channelPair) pop(queue *[]Message) (Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(*queue) == 0 {
		return Message{}, false
	}
	m := (*queue)[0]
	*queue = (*queue)[1:]
	return m, true
}

// Depths reports the current buffered message counts for workflowID.
func (b *Broker) Depths(workflowID string) (inputLen, outputLen int, err error) {
	p, err := b.pair(workflowID)
	if err != nil {
		return 0, 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.input), len(p.output), nil
}
