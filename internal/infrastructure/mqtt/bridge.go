package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nerrad567/tapline/internal/status"
)

// Transport is the subset of Client the bridge needs.
type Transport interface {
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, handler MessageHandler) error
}

// Dispatcher executes one named command. args is the raw JSON "args"
// object, possibly empty.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args json.RawMessage) (any, error)
}

// CommandRequest is the payload of a command topic. An empty payload is a
// command without arguments.
type CommandRequest struct {
	RequestID string          `json:"request_id,omitempty"`
	Args      json.RawMessage `json:"args,omitempty"`
}

// Ack is published to tapline/ack/{name} after a command runs.
type Ack struct {
	RequestID string `json:"request_id,omitempty"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	Result    any    `json:"result,omitempty"`
}

const commandBuffer = 16

type command struct {
	name    string
	payload []byte
}

// Bridge mirrors the status board onto retained topics and feeds command
// topics into a Dispatcher.
//
// Publish is a status.Sink and never blocks: updates coalesce per section
// and Run publishes the latest one. Commands run one at a time in arrival
// order.
type Bridge struct {
	transport  Transport
	dispatcher Dispatcher
	logger     Logger
	topics     Topics

	mu      sync.Mutex
	pending map[status.Section]status.Update
	notify  chan struct{}

	commands chan command
}

// NewBridge creates a bridge. A nil dispatcher disables command intake.
func NewBridge(t Transport, d Dispatcher, logger Logger) *Bridge {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bridge{
		transport:  t,
		dispatcher: d,
		logger:     logger,
		pending:    make(map[status.Section]status.Update),
		notify:     make(chan struct{}, 1),
		commands:   make(chan command, commandBuffer),
	}
}

// Publish queues a board update. It implements status.Sink.
func (b *Bridge) Publish(u status.Update) {
	b.mu.Lock()
	b.pending[u.Section] = u
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Resync queues every section of snap, for use after a broker reconnect.
func (b *Bridge) Resync(snap status.Snapshot, frame []byte) {
	for _, s := range status.Sections() {
		u := status.Update{Section: s, Snapshot: snap}
		if s == status.SectionScreenshot {
			u.Frame = frame
		}
		b.Publish(u)
	}
}

// Run subscribes to command topics and publishes updates until ctx ends.
func (b *Bridge) Run(ctx context.Context) error {
	if b.dispatcher != nil {
		if err := b.transport.Subscribe(b.topics.AllCommands(), b.handleCommand); err != nil {
			return fmt.Errorf("subscribing to commands: %w", err)
		}
		go b.runCommands(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.notify:
			b.flush()
		}
	}
}

func (b *Bridge) flush() {
	b.mu.Lock()
	batch := make([]status.Update, 0, len(b.pending))
	for _, s := range status.Sections() {
		if u, ok := b.pending[s]; ok {
			batch = append(batch, u)
		}
	}
	clear(b.pending)
	b.mu.Unlock()

	for _, u := range batch {
		if err := b.publishUpdate(u); err != nil {
			b.logger.Warn("mqtt state publish failed", "section", u.Section, "error", err)
		}
	}
}

func (b *Bridge) publishUpdate(u status.Update) error {
	payload, err := json.Marshal(u.Snapshot.Part(u.Section))
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", u.Section, err)
	}
	if err := b.transport.Publish(b.topics.State(string(u.Section)), payload, true); err != nil {
		return err
	}
	if u.Section != status.SectionScreenshot {
		return nil
	}

	// An empty retained payload clears the frame on the broker. A resync
	// without bytes leaves the retained frame alone.
	if u.Frame == nil && u.Snapshot.Screenshot.Size > 0 {
		return nil
	}
	if len(u.Frame) > maxPayloadSize {
		b.logger.Debug("screenshot frame too large for mqtt", "size", len(u.Frame))
		return nil
	}
	return b.transport.Publish(b.topics.Frame(), u.Frame, true)
}

// handleCommand runs on a paho goroutine, so it only enqueues.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	name, ok := b.topics.CommandName(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}
	select {
	case b.commands <- command{name: name, payload: append([]byte(nil), payload...)}:
		return nil
	default:
		return fmt.Errorf("command queue full, dropping %s", name)
	}
}

func (b *Bridge) runCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-b.commands:
			b.execute(ctx, cmd)
		}
	}
}

func (b *Bridge) execute(ctx context.Context, cmd command) {
	var req CommandRequest
	ack := Ack{}

	if len(cmd.payload) > 0 {
		if err := json.Unmarshal(cmd.payload, &req); err != nil {
			ack.Error = fmt.Sprintf("invalid command payload: %v", err)
			b.sendAck(cmd.name, ack)
			return
		}
	}
	ack.RequestID = req.RequestID

	result, err := b.dispatcher.Dispatch(ctx, cmd.name, req.Args)
	if err != nil {
		ack.Error = err.Error()
	} else {
		ack.OK = true
		ack.Result = result
	}

	b.logger.Debug("mqtt command handled", "command", cmd.name, "ok", ack.OK, "error", ack.Error)
	b.sendAck(cmd.name, ack)
}

func (b *Bridge) sendAck(name string, ack Ack) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Warn("mqtt ack marshal failed", "command", name, "error", err)
		return
	}
	if err := b.transport.Publish(b.topics.Ack(name), payload, false); err != nil {
		b.logger.Warn("mqtt ack publish failed", "command", name, "error", err)
	}
}
