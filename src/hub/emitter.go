package hub

import (
	"sync"

	"github.com/rs/zerolog"
)

// Handler is an application callback for a lifecycle event.
type Handler func(payload map[string]any)

// Emitter fans lifecycle events out to registered application handlers.
// Handler invocations are isolated: a panicking handler is logged and the
// remaining handlers still run.
type Emitter struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string]map[uint64]Handler
	logger   zerolog.Logger
}

// NewEmitter creates an empty emitter.
func NewEmitter(logger zerolog.Logger) *Emitter {
	return &Emitter{
		handlers: make(map[string]map[uint64]Handler),
		logger:   logger.With().Str("component", "emitter").Logger(),
	}
}

// On registers a handler for an event type and returns a registration id
// usable with Off.
func (e *Emitter) On(eventType string, fn Handler) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	if e.handlers[eventType] == nil {
		e.handlers[eventType] = make(map[uint64]Handler)
	}
	e.handlers[eventType][e.nextID] = fn
	return e.nextID
}

// Off unregisters a handler. Unknown ids are a no-op.
func (e *Emitter) Off(eventType string, id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	set, ok := e.handlers[eventType]
	if !ok {
		return false
	}
	if _, ok := set[id]; !ok {
		return false
	}
	delete(set, id)
	if len(set) == 0 {
		delete(e.handlers, eventType)
	}
	return true
}

// Emit invokes every handler registered for the event type.
func (e *Emitter) Emit(eventType string, payload map[string]any) {
	e.mu.RLock()
	fns := make([]Handler, 0, len(e.handlers[eventType]))
	for _, fn := range e.handlers[eventType] {
		fns = append(fns, fn)
	}
	e.mu.RUnlock()

	for _, fn := range fns {
		e.invoke(eventType, fn, payload)
	}
}

func (e *Emitter) invoke(eventType string, fn Handler, payload map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("event", eventType).
				Interface("panic", r).
				Msg("event handler panicked")
		}
	}()
	fn(payload)
}
