package touch

import (
	"sync"
	"testing"
	"time"
)

func TestNewMonitor_DefaultTimeout(t *testing.T) {
	m := NewMonitor(0)
	if m.Timeout() != DefaultTimeout {
		t.Errorf("Timeout() = %v, want %v", m.Timeout(), DefaultTimeout)
	}
	if m.IsActive() {
		t.Error("new monitor is active")
	}
	if _, ok := m.Remaining(); ok {
		t.Error("Remaining() ok = true on inactive monitor")
	}
}

func TestMonitor_ActivityExpires(t *testing.T) {
	const timeout = 80 * time.Millisecond
	m := NewMonitor(timeout)

	m.RecordActivity()
	if !m.IsActive() {
		t.Fatal("IsActive() = false right after RecordActivity")
	}
	rem, ok := m.Remaining()
	if !ok || rem <= 0 || rem > timeout {
		t.Errorf("Remaining() = %v, %v; want (0, %v]", rem, ok, timeout)
	}

	time.Sleep(timeout / 2)
	if !m.IsActive() {
		t.Error("IsActive() = false before timeout elapsed")
	}

	time.Sleep(timeout)
	if m.IsActive() {
		t.Error("IsActive() = true after timeout elapsed")
	}
}

// A newer touch extends the countdown; the stale timer must not clear it.
func TestMonitor_NewTouchRestartsCountdown(t *testing.T) {
	const timeout = 80 * time.Millisecond
	m := NewMonitor(timeout)

	m.RecordActivity()
	time.Sleep(50 * time.Millisecond)
	m.RecordActivity()
	time.Sleep(50 * time.Millisecond)

	// 100ms after the first touch, 50ms after the second.
	if !m.IsActive() {
		t.Error("IsActive() = false; stale timer cleared a renewed touch")
	}

	time.Sleep(60 * time.Millisecond)
	if m.IsActive() {
		t.Error("IsActive() = true after the renewed timeout elapsed")
	}
}

func TestMonitor_ClearIsImmediate(t *testing.T) {
	m := NewMonitor(time.Hour)
	m.RecordActivity()
	m.Clear()

	if m.IsActive() {
		t.Error("IsActive() = true after Clear")
	}
	if snap := m.Snapshot(); snap.Remaining != 0 {
		t.Errorf("Snapshot().Remaining = %v after Clear, want 0", snap.Remaining)
	}
}

func TestMonitor_OnChangeFiresOnTransitions(t *testing.T) {
	m := NewMonitor(40 * time.Millisecond)

	var mu sync.Mutex
	var seen []bool
	m.OnChange(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s.Active)
	})

	m.RecordActivity()
	m.RecordActivity() // still active: no notification
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || !seen[0] || seen[1] {
		t.Errorf("transitions = %v, want [true false]", seen)
	}
}

func TestMonitor_ConcurrentUse(t *testing.T) {
	m := NewMonitor(10 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				switch (i + j) % 3 {
				case 0:
					m.RecordActivity()
				case 1:
					m.Clear()
				default:
					m.IsActive()
					m.Remaining()
				}
			}
		}(i)
	}
	wg.Wait()

	m.Clear()
	if m.IsActive() {
		t.Error("IsActive() = true after final Clear")
	}
	if m.Events() == 0 {
		t.Error("Events() = 0 after recording")
	}
}

// Racing Record and Clear calls must leave observers with the monitor's
// final state.
func TestMonitor_ObserversSeeFinalState(t *testing.T) {
	m := NewMonitor(time.Minute)

	var mu sync.Mutex
	var last *State
	m.OnChange(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		last = &s
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if (i+j)%2 == 0 {
					m.RecordActivity()
				} else {
					m.Clear()
				}
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if last == nil {
		t.Fatal("no change delivered")
	}
	if last.Active != m.IsActive() {
		t.Errorf("last delivered Active = %v, IsActive() = %v", last.Active, m.IsActive())
	}
}

func TestMonitor_DropsStaleDelivery(t *testing.T) {
	m := NewMonitor(time.Minute)

	var seen []bool
	m.OnChange(func(s State) { seen = append(seen, s.Active) })

	m.notify(2, State{Active: false})
	m.notify(1, State{Active: true})
	m.notify(3, State{Active: true})

	if len(seen) != 2 || seen[0] || !seen[1] {
		t.Errorf("delivered = %v, want [false true]", seen)
	}
}
