package adb

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// MockExecutor answers adb invocations from a table keyed by the joined
// argument list (without "-s SERIAL").
type MockExecutor struct {
	mu      sync.Mutex
	replies map[string]mockReply
	calls   [][]string

	// block makes matching calls wait for ctx cancellation.
	block string
}

type mockReply struct {
	out string
	err error
}

func newMockExecutor() *MockExecutor {
	return &MockExecutor{replies: make(map[string]mockReply)}
}

func (m *MockExecutor) on(args string, out string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[args] = mockReply{out: out, err: err}
}

func (m *MockExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string{name}, args...))
	key := args
	if len(key) >= 2 && key[0] == "-s" {
		key = key[2:]
	}
	joined := strings.Join(key, " ")
	reply, ok := m.replies[joined]
	block := m.block != "" && joined == m.block
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if !ok {
		return nil, errors.New("unexpected adb call: " + joined)
	}
	if reply.err != nil {
		return nil, reply.err
	}
	return []byte(reply.out), nil
}

func (m *MockExecutor) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.calls))
	copy(out, m.calls)
	return out
}
