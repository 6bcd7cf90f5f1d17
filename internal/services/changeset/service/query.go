package service

import (
	"context"
	"fmt"

	"github.com/quillsync/quillsync/internal/platform/pagination"
	"github.com/quillsync/quillsync/internal/services/changeset/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// List orderings accepted by ListCommits. Newest-first serves review UIs;
// oldest-first serves downstream consumers replaying published commits.
const (
	OrderNewestFirst = "created_at desc"
	OrderOldestFirst = "created_at asc"
)

// ListCommits returns one page of a scope's commits. orderBy is one of the
// Order constants (empty selects newest-first); cursorID is an exclusive
// keyset cursor, zero starting from the edge of the chosen ordering.
func (e *Engine) ListCommits(ctx context.Context, scopeKey string, pageSize int, cursorID int64, orderBy string) ([]domain.Commit, error) {
	if !e.ready() {
		return nil, fmt.Errorf("service is not configured")
	}
	order, err := pagination.NormalizeOrderBy(orderBy, pagination.OrderByConfig{
		Default: OrderNewestFirst,
		Allowed: []string{OrderNewestFirst, OrderOldestFirst},
	})
	if err != nil {
		return nil, err
	}
	size := pagination.ClampPageSize(pageSize, pagination.PageSizeConfig{
		Default: defaultPageSize,
		Max:     maxPageSize,
	})
	return e.store.ListCommitsByScope(ctx, scopeKey, size, cursorID, order == OrderOldestFirst)
}

// Summaries computes review summaries for a batch of commits, keyed by
// commit id. Unknown ids are absent from the result.
func (e *Engine) Summaries(ctx context.Context, commitIDs []int64) (map[int64]domain.Summary, error) {
	if !e.ready() {
		return nil, fmt.Errorf("service is not configured")
	}
	return e.store.SummarizeCommits(ctx, commitIDs)
}
