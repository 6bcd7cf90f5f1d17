package service

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/quillsync/quillsync/internal/platform/errors"
	"github.com/quillsync/quillsync/internal/services/changeset/domain"
	"github.com/quillsync/quillsync/internal/services/changeset/storage"
)

// ConflictError reports a status transition that lost a concurrent race.
// Current carries the commit status observed after the failed attempt.
type ConflictError struct {
	CommitID int64
	Target   domain.Status
	Current  domain.Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("commit %d cannot move to %s: current status is %s", e.CommitID, e.Target, e.Current)
}

// Unwrap exposes the coded error so transport layers map conflicts to Aborted.
func (e *ConflictError) Unwrap() error {
	return apperrors.WithMetadata(
		apperrors.CodeChangesetLostRace,
		"concurrent status transition won",
		map[string]string{
			"TargetStatus":  string(e.Target),
			"CurrentStatus": string(e.Current),
		},
	)
}

// Advance moves a commit into target via one conditional update. The
// expected-status predicate comes from the domain transition table, so a
// commit that raced into another status is never silently overwritten.
// Moving into published stamps publishedAt and publishedBy from actor.
func (e *Engine) Advance(ctx context.Context, commitID int64, target domain.Status, actor string) (domain.Commit, error) {
	if !e.ready() {
		return domain.Commit{}, fmt.Errorf("service is not configured")
	}
	if !target.Valid() {
		return domain.Commit{}, apperrors.WithMetadata(
			apperrors.CodeChangesetInvalidStatus,
			fmt.Sprintf("invalid commit status: %q", string(target)),
			map[string]string{"Status": string(target)},
		)
	}
	expected := domain.AllowedFrom(target)
	if len(expected) == 0 {
		return domain.Commit{}, apperrors.WithMetadata(
			apperrors.CodeChangesetStatusTransition,
			fmt.Sprintf("no transitions lead to status %s", target),
			map[string]string{"ToStatus": string(target)},
		)
	}

	update := storage.StatusUpdate{Status: target}
	if target == domain.StatusPublished {
		at := e.now().UTC()
		update.PublishedAt = &at
		update.PublishedBy = actor
	}

	commit, err := e.store.UpdateCommitStatus(ctx, commitID, update, expected...)
	if errors.Is(err, storage.ErrNotFound) {
		current, getErr := e.store.GetCommit(ctx, commitID)
		if getErr != nil {
			return domain.Commit{}, fmt.Errorf("commit %d: %w", commitID, getErr)
		}
		return domain.Commit{}, &ConflictError{CommitID: commitID, Target: target, Current: current.Status}
	}
	if err != nil {
		return domain.Commit{}, fmt.Errorf("update commit %d status: %w", commitID, err)
	}
	return commit, nil
}

// Publish moves a ready commit through publishing into published. The first
// conditional update acquires the publish slot; of two concurrent publishers
// exactly one succeeds, the other receives a ConflictError.
func (e *Engine) Publish(ctx context.Context, commitID int64, publishedBy string) (domain.Commit, error) {
	if _, err := e.Advance(ctx, commitID, domain.StatusPublishing, publishedBy); err != nil {
		return domain.Commit{}, fmt.Errorf("acquire publish slot: %w", err)
	}
	commit, err := e.Advance(ctx, commitID, domain.StatusPublished, publishedBy)
	if err != nil {
		return domain.Commit{}, fmt.Errorf("finalize publish: %w", err)
	}
	return commit, nil
}

// Abort releases the publish slot, reverting publishing back to ready.
// Callers use it when external publish work fails after Advance into
// publishing.
func (e *Engine) Abort(ctx context.Context, commitID int64) (domain.Commit, error) {
	if !e.ready() {
		return domain.Commit{}, fmt.Errorf("service is not configured")
	}

	commit, err := e.store.UpdateCommitStatus(
		ctx,
		commitID,
		storage.StatusUpdate{Status: domain.StatusReady},
		domain.StatusPublishing,
	)
	if errors.Is(err, storage.ErrNotFound) {
		current, getErr := e.store.GetCommit(ctx, commitID)
		if getErr != nil {
			return domain.Commit{}, fmt.Errorf("commit %d: %w", commitID, getErr)
		}
		return domain.Commit{}, &ConflictError{CommitID: commitID, Target: domain.StatusReady, Current: current.Status}
	}
	if err != nil {
		return domain.Commit{}, fmt.Errorf("abort publish for commit %d: %w", commitID, err)
	}
	return commit, nil
}
