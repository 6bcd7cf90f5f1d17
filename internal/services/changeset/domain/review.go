package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/quillsync/quillsync/internal/platform/errors"
)

// Decision is a reviewer's verdict on one commit file.
type Decision string

const (
	// DecisionAccept approves the proposed change as-is.
	DecisionAccept Decision = "accept"
	// DecisionReject declines the proposed change.
	DecisionReject Decision = "reject"
	// DecisionAmend approves the change with reviewer-edited content.
	DecisionAmend Decision = "amend"
)

// Valid reports whether the decision is a known value.
func (d Decision) Valid() bool {
	return d == DecisionAccept || d == DecisionReject || d == DecisionAmend
}

var (
	// ErrInvalidDecision indicates a decision outside accept/reject/amend.
	ErrInvalidDecision = apperrors.New(apperrors.CodeReviewInvalidDecision, "review decision must be accept, reject, or amend")
	// ErrEmptyReviewer indicates a review without a reviewer identity.
	ErrEmptyReviewer = apperrors.New(apperrors.CodeReviewEmptyReviewer, "reviewer identity is required")
	// ErrMissingAmendedContent indicates an amend decision without content.
	ErrMissingAmendedContent = apperrors.New(apperrors.CodeReviewMissingAmended, "amended content is required for amend decisions")
)

// FileReview is one reviewer decision against one commit file. Reviews are
// append-only; the authoritative decision for a file is the most recent by
// (ReviewedAt, ID) descending.
type FileReview struct {
	ID           int64
	CommitFileID int64
	Decision     Decision
	// AmendedContent is present only for amend decisions.
	AmendedContent string
	ReviewedBy     string
	ReviewedAt     time.Time
	Comment        string
}

// NewFileReviewInput describes one reviewer action.
type NewFileReviewInput struct {
	CommitFileID   int64
	Decision       Decision
	AmendedContent string
	ReviewedBy     string
	Comment        string
}

// NewFileReview validates reviewer input and stamps the review time.
// The id is assigned by storage.
func NewFileReview(input NewFileReviewInput, now func() time.Time) (FileReview, error) {
	if now == nil {
		now = time.Now
	}

	if !input.Decision.Valid() {
		return FileReview{}, apperrors.WithMetadata(
			apperrors.CodeReviewInvalidDecision,
			fmt.Sprintf("invalid review decision: %q", string(input.Decision)),
			map[string]string{"Decision": string(input.Decision)},
		)
	}
	input.ReviewedBy = strings.TrimSpace(input.ReviewedBy)
	if input.ReviewedBy == "" {
		return FileReview{}, ErrEmptyReviewer
	}
	if input.Decision == DecisionAmend && input.AmendedContent == "" {
		return FileReview{}, ErrMissingAmendedContent
	}
	if input.Decision != DecisionAmend {
		// Amended content only travels with amend decisions.
		input.AmendedContent = ""
	}

	return FileReview{
		CommitFileID:   input.CommitFileID,
		Decision:       input.Decision,
		AmendedContent: input.AmendedContent,
		ReviewedBy:     input.ReviewedBy,
		ReviewedAt:     now().UTC(),
		Comment:        input.Comment,
	}, nil
}
