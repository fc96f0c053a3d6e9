// Package audittest provides an in-process Sink that records events for assertions.
package audittest

import (
	"context"
	"sync"

	"kycvault/pkg/platform/audit"
)

type Recorded struct {
	Type     audit.AuditEvent
	Severity audit.Severity
	Payload  map[string]any
}

// RecordingSink captures every Record call.
type RecordingSink struct {
	mu     sync.Mutex
	events []Recorded
}

func NewRecordingSink() *RecordingSink { return &RecordingSink{} }

func (s *RecordingSink) Record(_ context.Context, eventType audit.AuditEvent, severity audit.Severity, payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Recorded{Type: eventType, Severity: severity, Payload: payload})
}

func (s *RecordingSink) Events() []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Recorded(nil), s.events...)
}

// OfType returns the recorded events of one type in order.
func (s *RecordingSink) OfType(eventType audit.AuditEvent) []Recorded {
	var out []Recorded
	for _, e := range s.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (s *RecordingSink) Has(eventType audit.AuditEvent) bool {
	return len(s.OfType(eventType)) > 0
}

func (s *RecordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

var _ audit.Sink = (*RecordingSink)(nil)
