package touch

import (
	"bufio"
	"context"
	"io"
	"sync/atomic"
)

// Listener feeds getevent output into a Monitor.
//
// Thread Safety:
//   - HandleLine is safe for concurrent use.
type Listener struct {
	monitor *Monitor
	lines   atomic.Uint64
	touches atomic.Uint64
}

// ListenerStats counts processed input.
type ListenerStats struct {
	Lines   uint64 `json:"lines"`
	Touches uint64 `json:"touches"`
}

// NewListener creates a listener that records touches on m.
func NewListener(m *Monitor) *Listener {
	return &Listener{monitor: m}
}

// HandleLine inspects one getevent line and records touch activity.
// Its signature matches process.Config.OnLine.
func (l *Listener) HandleLine(line string) {
	l.lines.Add(1)
	if IsTouchLine(line) {
		l.touches.Add(1)
		l.monitor.RecordActivity()
	}
}

// Consume reads lines from r until EOF, a read error, or ctx is done.
func (l *Listener) Consume(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.HandleLine(scanner.Text())
	}
	return scanner.Err()
}

// Stats returns line and touch counters.
func (l *Listener) Stats() ListenerStats {
	return ListenerStats{
		Lines:   l.lines.Load(),
		Touches: l.touches.Load(),
	}
}
