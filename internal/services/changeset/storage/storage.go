// Package storage defines persistence contracts for the changeset review engine.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/quillsync/quillsync/internal/services/changeset/domain"
)

var (
	// ErrNotFound indicates a requested record is missing, or that a
	// conditional status update matched zero rows (a lost race).
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a unique-constraint conflict: a commit
	// with the same (scope key, client changeset id) already exists.
	// Callers handle it by re-reading via FindByScopeAndClientID.
	ErrAlreadyExists = errors.New("record already exists")
)

// StatusUpdate describes the fields a status transition writes.
// PublishedAt/PublishedBy are set only on transitions into published.
type StatusUpdate struct {
	Status      domain.Status
	PublishedAt *time.Time
	PublishedBy string
}

// CommitStore persists commit headers and their immutable file lists.
type CommitStore interface {
	// CreateCommit writes the commit header and every file row in one
	// transaction: either all rows exist afterwards or none do. A conflict
	// on (scope key, client changeset id) aborts the whole transaction and
	// surfaces as ErrAlreadyExists.
	CreateCommit(ctx context.Context, commit domain.Commit, files []domain.CommitFile) (domain.Commit, []domain.CommitFile, error)

	// GetCommit returns one commit by id.
	GetCommit(ctx context.Context, id int64) (domain.Commit, error)

	// FindByScopeAndClientID is a pure lookup with no side effects.
	FindByScopeAndClientID(ctx context.Context, scopeKey, clientChangesetID string) (domain.Commit, error)

	// ListCommitsByScope returns one page of a scope's commits ordered by
	// (created_at, id), descending by default or ascending when oldestFirst
	// is set. cursorID is an exclusive keyset cursor (0 = from the edge),
	// stable under concurrent inserts.
	ListCommitsByScope(ctx context.Context, scopeKey string, limit int, cursorID int64, oldestFirst bool) ([]domain.Commit, error)

	// GetCommitFiles returns a commit's files ordered by id ascending.
	GetCommitFiles(ctx context.Context, commitID int64) ([]domain.CommitFile, error)

	// GetCommitFile returns one commit file by id.
	GetCommitFile(ctx context.Context, id int64) (domain.CommitFile, error)

	// UpdateCommitStatus applies a status update. When expected statuses are
	// supplied the update is a compare-and-swap: it only applies while the
	// row's current status is in the expected set, and zero affected rows
	// surface as ErrNotFound so the caller can re-read and decide. With no
	// expected set the update is unconditional (administrative correction).
	UpdateCommitStatus(ctx context.Context, id int64, update StatusUpdate, expected ...domain.Status) (domain.Commit, error)
}

// ReviewStore persists the append-only file review ledger and serves
// read-time folds over it.
type ReviewStore interface {
	// AppendReview inserts a new review row. It never reads or mutates
	// prior reviews, which keeps concurrent reviewers conflict-free.
	AppendReview(ctx context.Context, review domain.FileReview) (domain.FileReview, error)

	// LatestReviews resolves the authoritative review per file for one
	// commit, keyed by commit file id. Unreviewed files are absent.
	LatestReviews(ctx context.Context, commitID int64) (map[int64]domain.FileReview, error)

	// LatestReviewForFile resolves the authoritative review for one file.
	// ErrNotFound means the file has no reviews yet (pending).
	LatestReviewForFile(ctx context.Context, commitFileID int64) (domain.FileReview, error)

	// SummarizeCommits computes review summaries for a batch of commits,
	// keyed by commit id. Unknown commit ids are absent from the result.
	SummarizeCommits(ctx context.Context, commitIDs []int64) (map[int64]domain.Summary, error)
}

// Store is a composite interface for changeset storage concerns.
type Store interface {
	CommitStore
	ReviewStore
	Close() error
}
