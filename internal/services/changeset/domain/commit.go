// Package domain holds the pure changeset review model: commits, files,
// reviews, and the status state machine. It performs no I/O.
package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/quillsync/quillsync/internal/platform/errors"
)

// OpType describes the kind of file-level change a commit file proposes.
type OpType string

const (
	// OpTypeUpsert creates or replaces the file content.
	OpTypeUpsert OpType = "upsert"
	// OpTypeDelete removes the file.
	OpTypeDelete OpType = "delete"
)

// Valid reports whether the op type is a known value.
func (o OpType) Valid() bool {
	return o == OpTypeUpsert || o == OpTypeDelete
}

var (
	// ErrEmptyScopeKey indicates a missing commit scope key.
	ErrEmptyScopeKey = apperrors.New(apperrors.CodeChangesetEmptyScopeKey, "commit scope key is required")
	// ErrEmptyClientChangesetID indicates a missing idempotency token.
	ErrEmptyClientChangesetID = apperrors.New(apperrors.CodeChangesetEmptyClientID, "client changeset id is required")
	// ErrNoFiles indicates a commit with no file changes.
	ErrNoFiles = apperrors.New(apperrors.CodeChangesetNoFiles, "at least one file change is required")
	// ErrEmptyFileID indicates a file change without a caller-stable file identity.
	ErrEmptyFileID = apperrors.New(apperrors.CodeChangesetEmptyFileID, "file id is required")
)

// Commit is a proposed, atomic batch of file changes awaiting review.
type Commit struct {
	ID int64
	// Seq is the monotonic source-side sequence number, informational ordering only.
	Seq int64
	// Message is an optional human-readable description of the change.
	Message string
	// MergePrompt is optional merge-assist prompt text supplied by the producer.
	MergePrompt string
	// PushedBy is the free-text identity of the proposer.
	PushedBy string
	// ClientChangesetID is the caller-supplied idempotency token.
	// (ScopeKey, ClientChangesetID) is globally unique.
	ClientChangesetID string
	Status            Status
	// ScopeKey identifies the logical stream this commit belongs to,
	// e.g. one target repository/branch pairing.
	ScopeKey     string
	TargetBranch string
	// PayloadHash is the content hash of the full proposed payload.
	PayloadHash string
	PublishedAt *time.Time
	PublishedBy string
	CreatedAt   time.Time
}

// CommitFile is one file-level change within a commit. (CommitID, FileID) is
// unique; rows are immutable after creation — amendments are recorded as
// reviews, never as file mutations.
type CommitFile struct {
	ID       int64
	CommitID int64
	// FileID is the caller-stable file identity.
	FileID string
	// DocJRN is the logical document reference.
	DocJRN     string
	ServerPath string
	// BaseContent and BaseVersion record what the change was computed
	// against, used to detect staleness.
	BaseContent string
	BaseVersion string
	// IncomingContent is the proposed new content; empty for deletes.
	IncomingContent     string
	IncomingContentHash string
	LineAdditions       int
	LineDeletions       int
	OpType              OpType
}

// NewCommitInput describes a proposed commit and its file changes.
type NewCommitInput struct {
	Seq               int64
	Message           string
	MergePrompt       string
	PushedBy          string
	ClientChangesetID string
	ScopeKey          string
	TargetBranch      string
	PayloadHash       string
	Files             []NewCommitFileInput
}

// NewCommitFileInput describes one file change in a proposed commit.
type NewCommitFileInput struct {
	FileID              string
	DocJRN              string
	ServerPath          string
	BaseContent         string
	BaseVersion         string
	IncomingContent     string
	IncomingContentHash string
	LineAdditions       int
	LineDeletions       int
	OpType              OpType
}

// NewCommit validates and normalizes input into a commit plus its files.
// The commit starts in StatusProposed; ids are assigned by storage.
func NewCommit(input NewCommitInput, now func() time.Time) (Commit, []CommitFile, error) {
	if now == nil {
		now = time.Now
	}

	normalized, err := NormalizeNewCommitInput(input)
	if err != nil {
		return Commit{}, nil, err
	}

	commit := Commit{
		Seq:               normalized.Seq,
		Message:           normalized.Message,
		MergePrompt:       normalized.MergePrompt,
		PushedBy:          normalized.PushedBy,
		ClientChangesetID: normalized.ClientChangesetID,
		Status:            StatusProposed,
		ScopeKey:          normalized.ScopeKey,
		TargetBranch:      normalized.TargetBranch,
		PayloadHash:       normalized.PayloadHash,
		CreatedAt:         now().UTC(),
	}

	files := make([]CommitFile, 0, len(normalized.Files))
	for _, f := range normalized.Files {
		files = append(files, CommitFile{
			FileID:              f.FileID,
			DocJRN:              f.DocJRN,
			ServerPath:          f.ServerPath,
			BaseContent:         f.BaseContent,
			BaseVersion:         f.BaseVersion,
			IncomingContent:     f.IncomingContent,
			IncomingContentHash: f.IncomingContentHash,
			LineAdditions:       f.LineAdditions,
			LineDeletions:       f.LineDeletions,
			OpType:              f.OpType,
		})
	}

	return commit, files, nil
}

// NormalizeNewCommitInput trims and validates proposed commit input.
func NormalizeNewCommitInput(input NewCommitInput) (NewCommitInput, error) {
	input.ScopeKey = strings.TrimSpace(input.ScopeKey)
	if input.ScopeKey == "" {
		return NewCommitInput{}, ErrEmptyScopeKey
	}
	input.ClientChangesetID = strings.TrimSpace(input.ClientChangesetID)
	if input.ClientChangesetID == "" {
		return NewCommitInput{}, ErrEmptyClientChangesetID
	}
	if len(input.Files) == 0 {
		return NewCommitInput{}, ErrNoFiles
	}
	if strings.TrimSpace(input.TargetBranch) == "" {
		input.TargetBranch = "main"
	} else {
		input.TargetBranch = strings.TrimSpace(input.TargetBranch)
	}

	seen := make(map[string]struct{}, len(input.Files))
	for i, f := range input.Files {
		f.FileID = strings.TrimSpace(f.FileID)
		if f.FileID == "" {
			return NewCommitInput{}, ErrEmptyFileID
		}
		if _, dup := seen[f.FileID]; dup {
			return NewCommitInput{}, apperrors.WithMetadata(
				apperrors.CodeChangesetDuplicateFileID,
				fmt.Sprintf("duplicate file id in commit: %s", f.FileID),
				map[string]string{"FileID": f.FileID},
			)
		}
		seen[f.FileID] = struct{}{}
		if !f.OpType.Valid() {
			return NewCommitInput{}, apperrors.WithMetadata(
				apperrors.CodeChangesetInvalidOpType,
				fmt.Sprintf("invalid op type: %q", string(f.OpType)),
				map[string]string{"OpType": string(f.OpType)},
			)
		}
		input.Files[i] = f
	}

	return input, nil
}
