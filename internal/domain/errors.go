package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. Components wrap these so callers can classify with errors.Is.
var (
	ErrDataQuality     = errors.New("data quality")
	ErrRiskViolation   = errors.New("risk violation")
	ErrIntegrity       = errors.New("integrity failure")
	ErrSystemFault     = errors.New("system fault")
	ErrOutOfSequence   = errors.New("tick out of sequence")
	ErrEngineStopped   = errors.New("engine stopped")
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// IntegrityError reports a decision log entry that cannot be trusted.
type IntegrityError struct {
	Seq    uint64
	Line   int
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity failure at line %d (seq %d): %s", e.Line, e.Seq, e.Reason)
}

// Unwrap lets errors.Is(err, ErrIntegrity) match.
func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// FaultError wraps an unexpected failure caught at the engine boundary.
type FaultError struct {
	Stage string
	Err   error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("system fault in %s: %v", e.Stage, e.Err)
}

func (e *FaultError) Unwrap() []error { return []error{ErrSystemFault, e.Err} }
