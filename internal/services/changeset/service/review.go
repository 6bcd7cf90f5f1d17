package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/quillsync/quillsync/internal/services/changeset/domain"
	"github.com/quillsync/quillsync/internal/services/changeset/storage"
)

// Review appends one reviewer decision to the file's ledger. Earlier
// decisions are never modified; the newest decision wins at read time.
func (e *Engine) Review(ctx context.Context, input domain.NewFileReviewInput) (domain.FileReview, error) {
	if !e.ready() {
		return domain.FileReview{}, fmt.Errorf("service is not configured")
	}

	review, err := domain.NewFileReview(input, e.now)
	if err != nil {
		return domain.FileReview{}, err
	}

	appended, err := e.store.AppendReview(ctx, review)
	if err != nil {
		return domain.FileReview{}, fmt.Errorf("append review for commit file %d: %w", input.CommitFileID, err)
	}
	return appended, nil
}

// FileState is one commit file with its authoritative review, when any.
type FileState struct {
	File domain.CommitFile
	// Latest is nil while the file is pending review.
	Latest *domain.FileReview
}

// FileState returns the current review state of one commit file.
func (e *Engine) FileState(ctx context.Context, commitFileID int64) (FileState, error) {
	if !e.ready() {
		return FileState{}, fmt.Errorf("service is not configured")
	}

	file, err := e.store.GetCommitFile(ctx, commitFileID)
	if err != nil {
		return FileState{}, fmt.Errorf("get commit file %d: %w", commitFileID, err)
	}

	latest, err := e.store.LatestReviewForFile(ctx, commitFileID)
	if errors.Is(err, storage.ErrNotFound) {
		return FileState{File: file}, nil
	}
	if err != nil {
		return FileState{}, fmt.Errorf("latest review for commit file %d: %w", commitFileID, err)
	}
	return FileState{File: file, Latest: &latest}, nil
}

// CommitState is a commit with per-file review states and a summary.
type CommitState struct {
	Commit  domain.Commit
	Files   []FileState
	Summary domain.Summary
}

// CommitReviewState returns the full review state of one commit.
func (e *Engine) CommitReviewState(ctx context.Context, commitID int64) (CommitState, error) {
	if !e.ready() {
		return CommitState{}, fmt.Errorf("service is not configured")
	}

	commit, err := e.store.GetCommit(ctx, commitID)
	if err != nil {
		return CommitState{}, fmt.Errorf("get commit %d: %w", commitID, err)
	}
	files, err := e.store.GetCommitFiles(ctx, commitID)
	if err != nil {
		return CommitState{}, fmt.Errorf("get commit files: %w", err)
	}
	latest, err := e.store.LatestReviews(ctx, commitID)
	if err != nil {
		return CommitState{}, fmt.Errorf("latest reviews: %w", err)
	}

	states := make([]FileState, 0, len(files))
	for _, file := range files {
		state := FileState{File: file}
		if review, ok := latest[file.ID]; ok {
			state.Latest = &review
		}
		states = append(states, state)
	}

	return CommitState{
		Commit:  commit,
		Files:   states,
		Summary: domain.Summarize(files, latest),
	}, nil
}
