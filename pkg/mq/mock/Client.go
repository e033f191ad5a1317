// Package mock provides mock implementations of the mq package interfaces for testing.
package mock

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"homesense.dev/backend/pkg/mq"
)

// PushCall records the arguments of one Push invocation.
type PushCall struct {
	Ctx  context.Context
	Data []byte
}

// MockClient is a mock implementation of ClientInterface for testing.
// It tracks method calls and allows configuring return values and behavior.
type MockClient struct {
	mu sync.Mutex

	// PushFunc is called when Push is invoked. If nil, returns PushError.
	PushFunc func(ctx context.Context, data []byte) error
	// PushError is returned by Push if PushFunc is nil.
	PushError error
	// PushCalls tracks all calls to Push with their arguments.
	PushCalls []PushCall

	// ConsumeFunc is called when Consume is invoked. If nil, returns ConsumeChannel and ConsumeError.
	ConsumeFunc func() (<-chan amqp.Delivery, error)
	// ConsumeChannel is returned by Consume if ConsumeFunc is nil.
	ConsumeChannel <-chan amqp.Delivery
	// ConsumeError is returned by Consume if ConsumeFunc is nil.
	ConsumeError error
	// ConsumeCalls tracks the number of times Consume was called.
	ConsumeCalls int

	// CloseFunc is called when Close is invoked. If nil, returns CloseError.
	CloseFunc func() error
	// CloseError is returned by Close if CloseFunc is nil.
	CloseError error
	// CloseCalls tracks the number of times Close was called.
	CloseCalls int
}

// Ensure MockClient implements ClientInterface.
var _ mq.ClientInterface = (*MockClient)(nil)

// Push records the call and invokes PushFunc or returns PushError.
func (m *MockClient) Push(ctx context.Context, data []byte) error {
	m.mu.Lock()
	m.PushCalls = append(m.PushCalls, PushCall{Ctx: ctx, Data: data})
	fn := m.PushFunc
	errOut := m.PushError
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, data)
	}
	return errOut
}

// Consume records the call and invokes ConsumeFunc or returns the configured channel.
func (m *MockClient) Consume() (<-chan amqp.Delivery, error) {
	m.mu.Lock()
	m.ConsumeCalls++
	fn := m.ConsumeFunc
	ch := m.ConsumeChannel
	errOut := m.ConsumeError
	m.mu.Unlock()

	if fn != nil {
		return fn()
	}
	return ch, errOut
}

// Close records the call and invokes CloseFunc or returns CloseError.
func (m *MockClient) Close() error {
	m.mu.Lock()
	m.CloseCalls++
	fn := m.CloseFunc
	errOut := m.CloseError
	m.mu.Unlock()

	if fn != nil {
		return fn()
	}
	return errOut
}

// Pushed returns a copy of all recorded Push payloads.
func (m *MockClient) Pushed() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]byte, len(m.PushCalls))
	for i, c := range m.PushCalls {
		out[i] = c.Data
	}
	return out
}
