package transport

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/models"
)

// Dispatcher routes inbound frames to registered handlers by frame type.
// Multiple handlers may be registered per type; each registration returns
// an unsubscribe func that must be called on teardown.
type Dispatcher struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[models.FrameType]map[int]func(json.RawMessage)
	log      zerolog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[models.FrameType]map[int]func(json.RawMessage)),
		log:      log,
	}
}

// Subscribe registers a raw handler for one frame type.
func (d *Dispatcher) Subscribe(t models.FrameType, h func(json.RawMessage)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	if _, ok := d.handlers[t]; !ok {
		d.handlers[t] = make(map[int]func(json.RawMessage))
	}
	d.handlers[t][id] = h

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if hs, ok := d.handlers[t]; ok {
			delete(hs, id)
			if len(hs) == 0 {
				delete(d.handlers, t)
			}
		}
	}
}

// Dispatch invokes every handler registered for the frame's type.
// Called from the read loop, so handlers run in receipt order.
func (d *Dispatcher) Dispatch(f models.Frame) {
	d.mu.RLock()
	hs := make([]func(json.RawMessage), 0, len(d.handlers[f.Type]))
	for _, h := range d.handlers[f.Type] {
		hs = append(hs, h)
	}
	d.mu.RUnlock()

	for _, h := range hs {
		h(f.Payload)
	}
}

// On registers a handler that receives the frame payload decoded into T.
// Malformed payloads are logged and skipped without crashing the loop.
func On[T any](d *Dispatcher, t models.FrameType, h func(T)) func() {
	return d.Subscribe(t, func(raw json.RawMessage) {
		var v T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &v); err != nil {
				d.log.Warn().Err(err).Str("frame_type", string(t)).Msg("discarding undecodable frame payload")
				return
			}
		}
		h(v)
	})
}
