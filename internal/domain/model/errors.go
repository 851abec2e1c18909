package model

import "errors"

// Error kinds surfaced by the engine.
var (
	// ErrInvalidInput marks malformed or out-of-range submission fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrImplausibleScore marks an anti-cheat rejection.
	ErrImplausibleScore = errors.New("implausible score")
	// ErrWriteConflict is raised by storage when a first insert loses a race
	// on the (user, key) unique constraint. It never leaves the best-record
	// store.
	ErrWriteConflict = errors.New("write conflict")
	// ErrPersistence marks storage failures and exhausted retries.
	ErrPersistence = errors.New("persistence failure")
	// ErrNotFound is returned when a ranked record does not exist.
	ErrNotFound = errors.New("not found")
)

// Rejection is a client-caused refusal with a reason safe to show the player.
type Rejection struct {
	Kind   error
	Rule   string
	Reason string
}

// Reject builds a Rejection of the given kind.
func Reject(kind error, rule, reason string) *Rejection {
	return &Rejection{Kind: kind, Rule: rule, Reason: reason}
}

func (r *Rejection) Error() string { return r.Reason }

func (r *Rejection) Unwrap() error { return r.Kind }

// IsRejection reports whether err is a client-caused rejection and returns it.
func IsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
