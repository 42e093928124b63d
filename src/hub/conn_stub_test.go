package hub

import (
	"errors"
	"sync"

	"github.com/docflow/eventhub/src/types"
)

// stubConn records writes for in-package unit tests.
type stubConn struct {
	mu          sync.Mutex
	written     []types.Message
	failWrites  bool
	closed      bool
	closeCode   int
	closeReason string
}

var errStubWrite = errors.New("stub write failure")

func (s *stubConn) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errStubWrite
	}
	if msg, ok := v.(types.Message); ok {
		s.written = append(s.written, msg)
	}
	return nil
}

func (s *stubConn) ReadJSON(v any) error {
	return errors.New("stub conn does not read")
}

func (s *stubConn) WriteClose(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCode = code
	s.closeReason = reason
	return nil
}

func (s *stubConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubConn) messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]types.Message, len(s.written))
	copy(cp, s.written)
	return cp
}

func (s *stubConn) messagesOfType(eventType string) []types.Message {
	var out []types.Message
	for _, m := range s.messages() {
		if m.Type == eventType {
			out = append(out, m)
		}
	}
	return out
}
