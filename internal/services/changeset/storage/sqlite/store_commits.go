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

const commitColumns = `id, seq, message, merge_prompt, pushed_by, client_changeset_id, status,
	 commit_scope_key, target_branch, payload_hash, published_at, published_by, created_at`

func scanCommit(row interface{ Scan(...any) error }) (domain.Commit, error) {
	var (
		commit      domain.Commit
		status      string
		publishedAt sql.NullInt64
		createdAt   int64
	)
	err := row.Scan(
		&commit.ID,
		&commit.Seq,
		&commit.Message,
		&commit.MergePrompt,
		&commit.PushedBy,
		&commit.ClientChangesetID,
		&status,
		&commit.ScopeKey,
		&commit.TargetBranch,
		&commit.PayloadHash,
		&publishedAt,
		&commit.PublishedBy,
		&createdAt,
	)
	if err != nil {
		return domain.Commit{}, err
	}
	commit.Status = domain.Status(status)
	if publishedAt.Valid {
		at := fromMillis(publishedAt.Int64)
		commit.PublishedAt = &at
	}
	commit.CreatedAt = fromMillis(createdAt)
	return commit, nil
}

// CreateCommit inserts the commit header and all file rows in one transaction.
func (s *Store) CreateCommit(ctx context.Context, commit domain.Commit, files []domain.CommitFile) (domain.Commit, []domain.CommitFile, error) {
	if err := ctx.Err(); err != nil {
		return domain.Commit{}, nil, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Commit{}, nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(commit.ScopeKey) == "" {
		return domain.Commit{}, nil, fmt.Errorf("commit scope key is required")
	}
	if strings.TrimSpace(commit.ClientChangesetID) == "" {
		return domain.Commit{}, nil, fmt.Errorf("client changeset id is required")
	}
	if len(files) == 0 {
		return domain.Commit{}, nil, fmt.Errorf("at least one commit file is required")
	}
	if !commit.Status.Valid() {
		return domain.Commit{}, nil, fmt.Errorf("invalid commit status: %q", string(commit.Status))
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Commit{}, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var publishedAt any
	if commit.PublishedAt != nil {
		publishedAt = toMillis(*commit.PublishedAt)
	}

	result, err := tx.ExecContext(
		ctx,
		`INSERT INTO commits (seq, message, merge_prompt, pushed_by, client_changeset_id, status,
		   commit_scope_key, target_branch, payload_hash, published_at, published_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		commit.Seq,
		commit.Message,
		commit.MergePrompt,
		commit.PushedBy,
		commit.ClientChangesetID,
		string(commit.Status),
		commit.ScopeKey,
		commit.TargetBranch,
		commit.PayloadHash,
		publishedAt,
		commit.PublishedBy,
		toMillis(commit.CreatedAt),
	)
	if err != nil {
		if isConstraintError(err) {
			return domain.Commit{}, nil, storage.ErrAlreadyExists
		}
		return domain.Commit{}, nil, fmt.Errorf("insert commit: %w", err)
	}
	commitID, err := result.LastInsertId()
	if err != nil {
		return domain.Commit{}, nil, fmt.Errorf("commit insert id: %w", err)
	}
	commit.ID = commitID
	commit.CreatedAt = fromMillis(toMillis(commit.CreatedAt))

	inserted := make([]domain.CommitFile, 0, len(files))
	for _, file := range files {
		file.CommitID = commitID
		result, err := tx.ExecContext(
			ctx,
			`INSERT INTO commit_files (commit_id, file_id, doc_jrn, server_path, base_content, base_version,
			   incoming_content, incoming_content_hash, line_additions, line_deletions, op_type)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			file.CommitID,
			file.FileID,
			file.DocJRN,
			file.ServerPath,
			file.BaseContent,
			file.BaseVersion,
			file.IncomingContent,
			file.IncomingContentHash,
			file.LineAdditions,
			file.LineDeletions,
			string(file.OpType),
		)
		if err != nil {
			if isConstraintError(err) {
				return domain.Commit{}, nil, storage.ErrAlreadyExists
			}
			return domain.Commit{}, nil, fmt.Errorf("insert commit file %q: %w", file.FileID, err)
		}
		fileID, err := result.LastInsertId()
		if err != nil {
			return domain.Commit{}, nil, fmt.Errorf("commit file insert id: %w", err)
		}
		file.ID = fileID
		inserted = append(inserted, file)
	}

	if err := tx.Commit(); err != nil {
		return domain.Commit{}, nil, fmt.Errorf("commit tx: %w", err)
	}
	return commit, inserted, nil
}

// GetCommit returns one commit by id.
func (s *Store) GetCommit(ctx context.Context, id int64) (domain.Commit, error) {
	if err := ctx.Err(); err != nil {
		return domain.Commit{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Commit{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+commitColumns+` FROM commits WHERE id = ?`, id)
	commit, err := scanCommit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Commit{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Commit{}, fmt.Errorf("get commit: %w", err)
	}
	return commit, nil
}

// FindByScopeAndClientID looks up a commit by its idempotency key.
func (s *Store) FindByScopeAndClientID(ctx context.Context, scopeKey, clientChangesetID string) (domain.Commit, error) {
	if err := ctx.Err(); err != nil {
		return domain.Commit{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Commit{}, fmt.Errorf("storage is not configured")
	}
	scopeKey = strings.TrimSpace(scopeKey)
	clientChangesetID = strings.TrimSpace(clientChangesetID)
	if scopeKey == "" {
		return domain.Commit{}, fmt.Errorf("commit scope key is required")
	}
	if clientChangesetID == "" {
		return domain.Commit{}, fmt.Errorf("client changeset id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+commitColumns+` FROM commits WHERE commit_scope_key = ? AND client_changeset_id = ?`,
		scopeKey,
		clientChangesetID,
	)
	commit, err := scanCommit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Commit{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Commit{}, fmt.Errorf("find commit by client id: %w", err)
	}
	return commit, nil
}

// ListCommitsByScope returns one commit page with an exclusive keyset cursor,
// newest-first unless oldestFirst is set.
func (s *Store) ListCommitsByScope(ctx context.Context, scopeKey string, limit int, cursorID int64, oldestFirst bool) ([]domain.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	scopeKey = strings.TrimSpace(scopeKey)
	if scopeKey == "" {
		return nil, fmt.Errorf("commit scope key is required")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + commitColumns + ` FROM commits WHERE commit_scope_key = ?`
	args := []any{scopeKey}
	if cursorID > 0 {
		cursor, err := s.GetCommit(ctx, cursorID)
		if err != nil {
			return nil, fmt.Errorf("resolve list cursor: %w", err)
		}
		if oldestFirst {
			query += ` AND (created_at > ? OR (created_at = ? AND id > ?))`
		} else {
			query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		}
		cursorAt := toMillis(cursor.CreatedAt)
		args = append(args, cursorAt, cursorAt, cursor.ID)
	}
	if oldestFirst {
		query += ` ORDER BY created_at ASC, id ASC LIMIT ?`
	} else {
		query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	}
	args = append(args, limit)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	defer rows.Close()

	var commits []domain.Commit
	for rows.Next() {
		commit, err := scanCommit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		commits = append(commits, commit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list commits rows: %w", err)
	}
	return commits, nil
}

func scanCommitFile(row interface{ Scan(...any) error }) (domain.CommitFile, error) {
	var (
		file   domain.CommitFile
		opType string
	)
	err := row.Scan(
		&file.ID,
		&file.CommitID,
		&file.FileID,
		&file.DocJRN,
		&file.ServerPath,
		&file.BaseContent,
		&file.BaseVersion,
		&file.IncomingContent,
		&file.IncomingContentHash,
		&file.LineAdditions,
		&file.LineDeletions,
		&opType,
	)
	if err != nil {
		return domain.CommitFile{}, err
	}
	file.OpType = domain.OpType(opType)
	return file, nil
}

const commitFileColumns = `id, commit_id, file_id, doc_jrn, server_path, base_content, base_version,
	 incoming_content, incoming_content_hash, line_additions, line_deletions, op_type`

// GetCommitFiles returns a commit's files ordered by id ascending.
func (s *Store) GetCommitFiles(ctx context.Context, commitID int64) ([]domain.CommitFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+commitFileColumns+` FROM commit_files WHERE commit_id = ? ORDER BY id ASC`,
		commitID,
	)
	if err != nil {
		return nil, fmt.Errorf("list commit files: %w", err)
	}
	defer rows.Close()

	var files []domain.CommitFile
	for rows.Next() {
		file, err := scanCommitFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan commit file: %w", err)
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list commit files rows: %w", err)
	}
	return files, nil
}

// GetCommitFile returns one commit file by id.
func (s *Store) GetCommitFile(ctx context.Context, id int64) (domain.CommitFile, error) {
	if err := ctx.Err(); err != nil {
		return domain.CommitFile{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.CommitFile{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+commitFileColumns+` FROM commit_files WHERE id = ?`, id)
	file, err := scanCommitFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CommitFile{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.CommitFile{}, fmt.Errorf("get commit file: %w", err)
	}
	return file, nil
}

// UpdateCommitStatus applies a status update, conditionally when an expected
// status set is supplied. Zero affected rows surface as storage.ErrNotFound.
func (s *Store) UpdateCommitStatus(ctx context.Context, id int64, update storage.StatusUpdate, expected ...domain.Status) (domain.Commit, error) {
	if err := ctx.Err(); err != nil {
		return domain.Commit{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Commit{}, fmt.Errorf("storage is not configured")
	}
	if !update.Status.Valid() {
		return domain.Commit{}, fmt.Errorf("invalid commit status: %q", string(update.Status))
	}

	var publishedAt any
	if update.PublishedAt != nil {
		publishedAt = toMillis(*update.PublishedAt)
	}

	query := `UPDATE commits SET status = ?, published_at = ?, published_by = ? WHERE id = ?`
	args := []any{string(update.Status), publishedAt, update.PublishedBy, id}
	if len(expected) > 0 {
		placeholders := make([]string, 0, len(expected))
		for _, from := range expected {
			placeholders = append(placeholders, "?")
			args = append(args, string(from))
		}
		query += ` AND status IN (` + strings.Join(placeholders, ", ") + `)`
	}

	result, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Commit{}, fmt.Errorf("update commit status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.Commit{}, fmt.Errorf("update commit status rows: %w", err)
	}
	if affected == 0 {
		return domain.Commit{}, storage.ErrNotFound
	}
	return s.GetCommit(ctx, id)
}
