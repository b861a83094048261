// Package service provides the job lifecycle engine and its supporting
// business logic for the dashboard.
package service

import (
	"errors"
	"fmt"
)

// RejectReason is the machine-readable reason for a rejected transition.
type RejectReason string

const (
	// ReasonTerminal: the job is already in a terminal state.
	ReasonTerminal RejectReason = "job_terminal"
	// ReasonStaleReport: cumulative counts were lower than the stored counts.
	ReasonStaleReport RejectReason = "stale_report"
	// ReasonExceedsTotal: cumulative counts exceed the finalized file total.
	ReasonExceedsTotal RejectReason = "exceeds_total"
	// ReasonFilesRemaining: completion signaled before all files were accounted for.
	ReasonFilesRemaining RejectReason = "files_remaining"
	// ReasonInvalidTransition: the signal is not valid for the current status.
	ReasonInvalidTransition RejectReason = "invalid_transition"
)

// RejectionError reports an attempted transition that is invalid for the
// job's current state. Rejections are expected protocol outcomes, not
// failures: producers racing a cancellation see one, a duplicate progress
// report sees one. The job state is unchanged and no event is published.
type RejectionError struct {
	Reason  RejectReason
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("transition rejected (%s): %s", e.Reason, e.Message)
}

func reject(reason RejectReason, format string, args ...any) error {
	return &RejectionError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// IsRejection reports whether err is a transition rejection.
func IsRejection(err error) bool {
	var r *RejectionError
	return errors.As(err, &r)
}

// AsRejection extracts the rejection from err, or nil.
func AsRejection(err error) *RejectionError {
	var r *RejectionError
	if errors.As(err, &r) {
		return r
	}
	return nil
}

// ErrInvalidInput indicates a malformed request (empty query text, negative
// counters) rather than an invalid transition.
var ErrInvalidInput = errors.New("invalid input")
