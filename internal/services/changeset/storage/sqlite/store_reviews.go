package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/quillsync/quillsync/internal/services/changeset/domain"
	"github.com/quillsync/quillsync/internal/services/changeset/storage"
)

const reviewColumns = `id, commit_file_id, decision, amended_content, reviewed_by, reviewed_at, comment`

func scanReview(row interface{ Scan(...any) error }) (domain.FileReview, error) {
	var (
		review     domain.FileReview
		decision   string
		reviewedAt int64
	)
	err := row.Scan(
		&review.ID,
		&review.CommitFileID,
		&decision,
		&review.AmendedContent,
		&review.ReviewedBy,
		&reviewedAt,
		&review.Comment,
	)
	if err != nil {
		return domain.FileReview{}, err
	}
	review.Decision = domain.Decision(decision)
	review.ReviewedAt = fromMillis(reviewedAt)
	return review, nil
}

// AppendReview inserts a new review row. Prior reviews are never touched.
func (s *Store) AppendReview(ctx context.Context, review domain.FileReview) (domain.FileReview, error) {
	if err := ctx.Err(); err != nil {
		return domain.FileReview{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.FileReview{}, fmt.Errorf("storage is not configured")
	}
	if !review.Decision.Valid() {
		return domain.FileReview{}, fmt.Errorf("invalid review decision: %q", string(review.Decision))
	}
	if strings.TrimSpace(review.ReviewedBy) == "" {
		return domain.FileReview{}, fmt.Errorf("reviewer identity is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO commit_file_reviews (commit_file_id, decision, amended_content, reviewed_by, reviewed_at, comment)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		review.CommitFileID,
		string(review.Decision),
		review.AmendedContent,
		review.ReviewedBy,
		toMillis(review.ReviewedAt),
		review.Comment,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return domain.FileReview{}, storage.ErrNotFound
		}
		return domain.FileReview{}, fmt.Errorf("insert review: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return domain.FileReview{}, fmt.Errorf("review insert id: %w", err)
	}
	review.ID = id
	review.ReviewedAt = fromMillis(toMillis(review.ReviewedAt))
	return review, nil
}

// LatestReviews resolves the authoritative review per file for one commit.
func (s *Store) LatestReviews(ctx context.Context, commitID int64) (map[int64]domain.FileReview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT r.id, r.commit_file_id, r.decision, r.amended_content, r.reviewed_by, r.reviewed_at, r.comment
		 FROM commit_file_reviews r
		 JOIN commit_files f ON f.id = r.commit_file_id
		 WHERE f.commit_id = ?`,
		commitID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []domain.FileReview
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reviews rows: %w", err)
	}
	return domain.LatestByFile(reviews), nil
}

// LatestReviewForFile resolves the authoritative review for one commit file.
func (s *Store) LatestReviewForFile(ctx context.Context, commitFileID int64) (domain.FileReview, error) {
	if err := ctx.Err(); err != nil {
		return domain.FileReview{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.FileReview{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+reviewColumns+` FROM commit_file_reviews
		 WHERE commit_file_id = ?
		 ORDER BY reviewed_at DESC, id DESC
		 LIMIT 1`,
		commitFileID,
	)
	review, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FileReview{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.FileReview{}, fmt.Errorf("latest review for file: %w", err)
	}
	return review, nil
}

// SummarizeCommits computes review summaries for a batch of commits. Unknown
// commit ids are skipped. The batch runs as three set queries over the whole
// id list, one per table, with the per-commit fold happening in memory.
func (s *Store) SummarizeCommits(ctx context.Context, commitIDs []int64) (map[int64]domain.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	seen := make(map[int64]struct{}, len(commitIDs))
	ids := make([]int64, 0, len(commitIDs))
	for _, commitID := range commitIDs {
		if _, dup := seen[commitID]; dup {
			continue
		}
		seen[commitID] = struct{}{}
		ids = append(ids, commitID)
	}
	if len(ids) == 0 {
		return map[int64]domain.Summary{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	known := make(map[int64]struct{}, len(ids))
	commitRows, err := s.sqlDB.QueryContext(ctx, `SELECT id FROM commits WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve commits: %w", err)
	}
	defer commitRows.Close()
	for commitRows.Next() {
		var commitID int64
		if err := commitRows.Scan(&commitID); err != nil {
			return nil, fmt.Errorf("scan commit id: %w", err)
		}
		known[commitID] = struct{}{}
	}
	if err := commitRows.Err(); err != nil {
		return nil, fmt.Errorf("resolve commits rows: %w", err)
	}

	filesByCommit := make(map[int64][]domain.CommitFile, len(known))
	fileRows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+commitFileColumns+` FROM commit_files WHERE commit_id IN (`+placeholders+`) ORDER BY id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list commit files: %w", err)
	}
	defer fileRows.Close()
	for fileRows.Next() {
		file, err := scanCommitFile(fileRows)
		if err != nil {
			return nil, fmt.Errorf("scan commit file: %w", err)
		}
		filesByCommit[file.CommitID] = append(filesByCommit[file.CommitID], file)
	}
	if err := fileRows.Err(); err != nil {
		return nil, fmt.Errorf("list commit files rows: %w", err)
	}

	reviewsByCommit := make(map[int64][]domain.FileReview, len(known))
	reviewRows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT f.commit_id, r.id, r.commit_file_id, r.decision, r.amended_content, r.reviewed_by, r.reviewed_at, r.comment
		 FROM commit_file_reviews r
		 JOIN commit_files f ON f.id = r.commit_file_id
		 WHERE f.commit_id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer reviewRows.Close()
	for reviewRows.Next() {
		var (
			commitID   int64
			review     domain.FileReview
			decision   string
			reviewedAt int64
		)
		if err := reviewRows.Scan(
			&commitID,
			&review.ID,
			&review.CommitFileID,
			&decision,
			&review.AmendedContent,
			&review.ReviewedBy,
			&reviewedAt,
			&review.Comment,
		); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		review.Decision = domain.Decision(decision)
		review.ReviewedAt = fromMillis(reviewedAt)
		reviewsByCommit[commitID] = append(reviewsByCommit[commitID], review)
	}
	if err := reviewRows.Err(); err != nil {
		return nil, fmt.Errorf("list reviews rows: %w", err)
	}

	summaries := make(map[int64]domain.Summary, len(known))
	for commitID := range known {
		summaries[commitID] = domain.Summarize(filesByCommit[commitID], domain.LatestByFile(reviewsByCommit[commitID]))
	}
	return summaries, nil
}
