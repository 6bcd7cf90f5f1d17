package domain

import (
	"fmt"

	apperrors "github.com/quillsync/quillsync/internal/platform/errors"
)

// Status describes the review lifecycle of a commit.
type Status string

const (
	// StatusProposed is the initial status of every created commit.
	StatusProposed Status = "proposed"
	// StatusReviewing indicates review is in progress.
	StatusReviewing Status = "reviewing"
	// StatusReady indicates the commit is cleared for publication.
	StatusReady Status = "ready"
	// StatusPublishing indicates a publisher holds the publish slot.
	StatusPublishing Status = "publishing"
	// StatusPublished is terminal: the commit was published exactly once.
	StatusPublished Status = "published"
	// StatusRejected is terminal: the commit will never be published.
	StatusRejected Status = "rejected"
	// StatusSuperseded is terminal: a newer commit replaced this one.
	StatusSuperseded Status = "superseded"
)

// ErrInvalidStatusTransition indicates a disallowed commit status change.
var ErrInvalidStatusTransition = apperrors.New(apperrors.CodeChangesetStatusTransition, "commit status transition is not allowed")

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusProposed, StatusReviewing, StatusReady, StatusPublishing,
		StatusPublished, StatusRejected, StatusSuperseded:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusPublished || s == StatusRejected || s == StatusSuperseded
}

// allowedFrom is the transition guard table: for each target status, the set
// of statuses a commit may move from. Conditional updates derive their
// expected-status predicate from this table.
var allowedFrom = map[Status][]Status{
	StatusReviewing:  {StatusProposed},
	StatusReady:      {StatusProposed, StatusReviewing, StatusPublishing},
	StatusPublishing: {StatusReady},
	StatusPublished:  {StatusReady, StatusPublishing},
	StatusRejected:   {StatusProposed, StatusReviewing, StatusReady, StatusPublishing},
	StatusSuperseded: {StatusProposed, StatusReviewing, StatusReady},
}

// AllowedFrom returns the statuses a commit may transition into target from.
// The returned slice is a copy and safe to modify.
func AllowedFrom(target Status) []Status {
	from, ok := allowedFrom[target]
	if !ok {
		return nil
	}
	out := make([]Status, len(from))
	copy(out, from)
	return out
}

// IsTransitionAllowed reports whether a status transition is permitted.
func IsTransitionAllowed(from, to Status) bool {
	for _, s := range allowedFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}

// ValidateTransition returns a coded error when from -> to is not permitted.
func ValidateTransition(from, to Status) error {
	if IsTransitionAllowed(from, to) {
		return nil
	}
	return apperrors.WithMetadata(
		apperrors.CodeChangesetStatusTransition,
		fmt.Sprintf("commit status transition not allowed: %s -> %s", from, to),
		map[string]string{"FromStatus": string(from), "ToStatus": string(to)},
	)
}
