// Package orphans tracks stored objects that lost their metadata row and
// could not be removed by the compensating delete.
package orphans

import (
	"context"
	"time"
)

// Orphan is one object path awaiting cleanup.
type Orphan struct {
	Path       string    `json:"path"`
	Reason     string    `json:"reason"`
	RecordedAt time.Time `json:"recorded_at"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
}

// Registry is implemented by the memory and Redis stores.
type Registry interface {
	Record(ctx context.Context, orphan Orphan) error
	List(ctx context.Context, limit int) ([]Orphan, error)
	Remove(ctx context.Context, path string) error
}
