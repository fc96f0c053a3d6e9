package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and adapters return these
// (optionally wrapped) and services translate them into coded domain errors:
//   - ErrNotFound: object or row does not exist
//   - ErrConflict: a uniqueness rule would be violated
//   - ErrInvalidState: row is not in the state the update expected
//   - ErrUnavailable: backend unreachable or timed out
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
