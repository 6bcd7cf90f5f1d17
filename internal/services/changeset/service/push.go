package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/quillsync/quillsync/internal/services/changeset/domain"
	"github.com/quillsync/quillsync/internal/services/changeset/storage"
)

// PushResult is the outcome of a push. AlreadyExists marks an idempotent
// retry: the returned commit is the previously created one, untouched.
type PushResult struct {
	Commit        domain.Commit
	Files         []domain.CommitFile
	AlreadyExists bool
}

// Push validates and persists a proposed commit. A retry carrying the same
// (scope key, client changeset id) returns the existing commit without
// writing anything.
func (e *Engine) Push(ctx context.Context, input domain.NewCommitInput) (PushResult, error) {
	if !e.ready() {
		return PushResult{}, fmt.Errorf("service is not configured")
	}

	commit, files, err := domain.NewCommit(input, e.now)
	if err != nil {
		return PushResult{}, err
	}

	created, createdFiles, err := e.store.CreateCommit(ctx, commit, files)
	if errors.Is(err, storage.ErrAlreadyExists) {
		existing, findErr := e.store.FindByScopeAndClientID(ctx, commit.ScopeKey, commit.ClientChangesetID)
		if findErr != nil {
			return PushResult{}, fmt.Errorf("find existing commit: %w", findErr)
		}
		existingFiles, filesErr := e.store.GetCommitFiles(ctx, existing.ID)
		if filesErr != nil {
			return PushResult{}, fmt.Errorf("load existing commit files: %w", filesErr)
		}
		return PushResult{Commit: existing, Files: existingFiles, AlreadyExists: true}, nil
	}
	if err != nil {
		return PushResult{}, fmt.Errorf("create commit: %w", err)
	}
	return PushResult{Commit: created, Files: createdFiles}, nil
}
