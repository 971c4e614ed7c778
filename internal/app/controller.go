package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/tapline/internal/api"
	"github.com/nerrad567/tapline/internal/infrastructure/mqtt"
	"github.com/nerrad567/tapline/internal/scheduler"
	"github.com/nerrad567/tapline/internal/session"
	"github.com/nerrad567/tapline/internal/status"
	"github.com/nerrad567/tapline/internal/touch"
)

// Reconnector lets the controller cut a reconnect wait short.
type Reconnector interface {
	Reconnect()
}

// Controller implements the command surface. It implements api.Controller
// and mqtt.Dispatcher.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Device commands are
//     serialised by the queue.
type Controller struct {
	queue      *session.Queue
	scheduler  *scheduler.Scheduler
	touch      *touch.Monitor
	supervisor Reconnector
	board      *status.Board
	shutdown   func()
	logger     Logger
}

// ControllerDeps holds the controller's collaborators.
type ControllerDeps struct {
	Queue      *session.Queue
	Scheduler  *scheduler.Scheduler
	Touch      *touch.Monitor
	Supervisor Reconnector
	Board      *status.Board

	// Shutdown stops the runtime. It may be nil.
	Shutdown func()

	Logger Logger
}

// NewController creates a controller.
func NewController(deps ControllerDeps) *Controller {
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	if deps.Shutdown == nil {
		deps.Shutdown = func() {}
	}
	return &Controller{
		queue:      deps.Queue,
		scheduler:  deps.Scheduler,
		touch:      deps.Touch,
		supervisor: deps.Supervisor,
		board:      deps.Board,
		shutdown:   deps.Shutdown,
		logger:     deps.Logger,
	}
}

// Start begins automation. Starting while running is a no-op.
func (c *Controller) Start() error {
	c.scheduler.Start()
	c.board.SetStatus("Automation started", false)
	return nil
}

// Stop halts automation. Stopping while idle is a no-op.
func (c *Controller) Stop() error {
	c.scheduler.Stop()
	c.board.SetStatus("Automation stopped", false)
	return nil
}

// Pause suspends automation. It fails unless automation is running.
func (c *Controller) Pause() error {
	if err := c.scheduler.Pause(); err != nil {
		return err
	}
	c.board.SetStatus("Automation paused", false)
	return nil
}

// Resume continues paused automation. It fails unless automation is paused.
func (c *Controller) Resume() error {
	if err := c.scheduler.Resume(); err != nil {
		return err
	}
	c.board.SetStatus("Automation resumed", false)
	return nil
}

// TakeScreenshot captures one frame and publishes it on the board.
func (c *Controller) TakeScreenshot(ctx context.Context) ([]byte, error) {
	resp, err := c.queue.Submit(ctx, session.CaptureFrame{})
	if err != nil {
		c.board.SetStatus(fmt.Sprintf("Screenshot failed: %v", err), true)
		return nil, err
	}
	c.board.SetFrame(resp.Frame, time.Now())
	c.board.SetStatus(fmt.Sprintf("Screenshot captured (%d bytes)", len(resp.Frame)), true)
	return resp.Frame, nil
}

// Tap sends one tap.
func (c *Controller) Tap(ctx context.Context, x, y int) error {
	return c.device(ctx, session.Tap{X: x, Y: y})
}

// Swipe sends one swipe. A zero duration uses the session default.
func (c *Controller) Swipe(ctx context.Context, x1, y1, x2, y2 int, d time.Duration) error {
	return c.device(ctx, session.Swipe{X1: x1, Y1: y1, X2: x2, Y2: y2, Duration: d})
}

func (c *Controller) device(ctx context.Context, cmd session.Command) error {
	if _, err := c.queue.Submit(ctx, cmd); err != nil {
		c.board.SetStatus(fmt.Sprintf("%s failed: %v", cmd, err), true)
		return err
	}
	c.board.SetStatus(fmt.Sprintf("%s done", cmd), true)
	return nil
}

// ListEvents returns timed events in insertion order.
func (c *Controller) ListEvents() []scheduler.TimedEvent {
	return c.scheduler.List()
}

// AddEvent registers a timed event.
func (c *Controller) AddEvent(spec scheduler.Spec) (scheduler.TimedEvent, error) {
	ev, err := c.scheduler.Add(spec)
	if err != nil {
		return scheduler.TimedEvent{}, err
	}
	c.refreshTimers()
	return ev, nil
}

// RemoveEvent deletes a timed event.
func (c *Controller) RemoveEvent(id string) error {
	return c.timerChange(c.scheduler.Remove(id))
}

// TriggerEvent fires an event now, regardless of run state and touch.
// Captured frames reach the board through the scheduler's fire observers.
func (c *Controller) TriggerEvent(ctx context.Context, id string) error {
	if _, err := c.scheduler.Trigger(ctx, id); err != nil {
		return err
	}
	c.refreshTimers()
	return nil
}

// EnableEvent enables an event and restarts its interval.
func (c *Controller) EnableEvent(id string) error {
	return c.timerChange(c.scheduler.Enable(id))
}

// DisableEvent disables an event.
func (c *Controller) DisableEvent(id string) error {
	return c.timerChange(c.scheduler.Disable(id))
}

// AdjustInterval changes an event's interval.
func (c *Controller) AdjustInterval(id string, interval time.Duration) error {
	return c.timerChange(c.scheduler.AdjustInterval(id, interval))
}

func (c *Controller) timerChange(err error) error {
	if err == nil {
		c.refreshTimers()
	}
	return err
}

func (c *Controller) refreshTimers() {
	c.board.SetTimers(c.scheduler.Countdowns(time.Now()))
}

// ClearTouch ends a touch pause immediately.
func (c *Controller) ClearTouch() {
	c.touch.Clear()
	c.board.SetTouch(c.touch.Snapshot())
}

// RecordTouch starts a touch pause as if the screen had been touched.
func (c *Controller) RecordTouch() {
	c.touch.RecordActivity()
	c.board.SetTouch(c.touch.Snapshot())
}

// Reconnect skips the remaining backoff wait.
func (c *Controller) Reconnect() {
	if c.supervisor != nil {
		c.supervisor.Reconnect()
	}
}

// Shutdown stops the runtime.
func (c *Controller) Shutdown() {
	c.logger.Info("shutdown requested")
	c.shutdown()
}

type (
	idArgs struct {
		ID string `json:"id"`
	}
	tapArgs struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
	swipeArgs struct {
		X1       int          `json:"x1"`
		Y1       int          `json:"y1"`
		X2       int          `json:"x2"`
		Y2       int          `json:"y2"`
		Duration api.Duration `json:"duration"`
	}
	intervalArgs struct {
		ID       string       `json:"id"`
		Interval api.Duration `json:"interval"`
	}
	eventArgs struct {
		ID       string         `json:"id"`
		Kind     scheduler.Kind `json:"kind"`
		Interval api.Duration   `json:"interval"`
		Enabled  *bool          `json:"enabled"`
		X        int            `json:"x"`
		Y        int            `json:"y"`
		X2       int            `json:"x2"`
		Y2       int            `json:"y2"`
		Duration api.Duration   `json:"duration"`
	}
)

// Dispatch runs a named command with JSON arguments. It implements
// mqtt.Dispatcher.
func (c *Controller) Dispatch(ctx context.Context, name string, args json.RawMessage) (any, error) {
	switch name {
	case "start":
		return nil, c.Start()
	case "stop":
		return nil, c.Stop()
	case "pause":
		return nil, c.Pause()
	case "resume":
		return nil, c.Resume()
	case "screenshot":
		frame, err := c.TakeScreenshot(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int{"size": len(frame)}, nil
	case "tap":
		var a tapArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return nil, c.Tap(ctx, a.X, a.Y)
	case "swipe":
		var a swipeArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return nil, c.Swipe(ctx, a.X1, a.Y1, a.X2, a.Y2, time.Duration(a.Duration))
	case "list_events":
		return c.ListEvents(), nil
	case "add_event":
		var a eventArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		enabled := a.Enabled == nil || *a.Enabled
		return c.AddEvent(scheduler.Spec{
			ID: a.ID, Kind: a.Kind, Interval: time.Duration(a.Interval), Enabled: enabled,
			X: a.X, Y: a.Y, X2: a.X2, Y2: a.Y2, Duration: time.Duration(a.Duration),
		})
	case "remove_event", "trigger_event", "enable_event", "disable_event":
		var a idArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return nil, c.eventByName(ctx, name, a.ID)
	case "adjust_interval":
		var a intervalArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return nil, c.AdjustInterval(a.ID, time.Duration(a.Interval))
	case "clear_touch":
		c.ClearTouch()
		return nil, nil
	case "record_touch":
		c.RecordTouch()
		return nil, nil
	case "reconnect":
		c.Reconnect()
		return nil, nil
	case "shutdown":
		go c.Shutdown()
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %s", mqtt.ErrUnknownCommand, name)
	}
}

func (c *Controller) eventByName(ctx context.Context, name, id string) error {
	switch name {
	case "remove_event":
		return c.RemoveEvent(id)
	case "trigger_event":
		return c.TriggerEvent(ctx, id)
	case "enable_event":
		return c.EnableEvent(id)
	default:
		return c.DisableEvent(id)
	}
}

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: arguments required", session.ErrInvalidInput)
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", session.ErrInvalidInput, err)
	}
	return nil
}
