package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quillsync/quillsync/internal/services/changeset/domain"
	"github.com/quillsync/quillsync/internal/services/changeset/storage"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir() + "/changesets.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func proposedCommit(scopeKey, clientChangesetID string, createdAt time.Time) (domain.Commit, []domain.CommitFile) {
	commit := domain.Commit{
		Seq:               1,
		Message:           "sync docs",
		PushedBy:          "producer-1",
		ClientChangesetID: clientChangesetID,
		Status:            domain.StatusProposed,
		ScopeKey:          scopeKey,
		TargetBranch:      "main",
		PayloadHash:       "sha256:payload",
		CreatedAt:         createdAt,
	}
	files := []domain.CommitFile{
		{
			FileID:              "a.md",
			DocJRN:              "jrn:doc/a",
			ServerPath:          "docs/a.md",
			BaseContent:         "old a",
			BaseVersion:         "v1",
			IncomingContent:     "new a",
			IncomingContentHash: "sha256:a",
			LineAdditions:       4,
			LineDeletions:       1,
			OpType:              domain.OpTypeUpsert,
		},
		{
			FileID:          "b.md",
			DocJRN:          "jrn:doc/b",
			ServerPath:      "docs/b.md",
			BaseContent:     "old b",
			BaseVersion:     "v3",
			IncomingContent: "",
			LineAdditions:   0,
			LineDeletions:   12,
			OpType:          domain.OpTypeDelete,
		},
	}
	return commit, files
}

func mustCreate(t *testing.T, store *Store, scopeKey, clientChangesetID string, createdAt time.Time) (domain.Commit, []domain.CommitFile) {
	t.Helper()
	commit, files := proposedCommit(scopeKey, clientChangesetID, createdAt)
	created, createdFiles, err := store.CreateCommit(context.Background(), commit, files)
	if err != nil {
		t.Fatalf("create commit: %v", err)
	}
	return created, createdFiles
}

func TestCreateCommitRoundTrip(t *testing.T) {
	store := openStore(t)
	at := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)

	created, files := mustCreate(t, store, "repo:acme/docs#main", "cs-1", at)
	if created.ID == 0 {
		t.Fatal("commit id must be assigned")
	}
	if len(files) != 2 {
		t.Fatalf("files len = %d, want 2", len(files))
	}
	for _, f := range files {
		if f.ID == 0 || f.CommitID != created.ID {
			t.Fatalf("file ids not assigned: %+v", f)
		}
	}

	got, err := store.GetCommit(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get commit: %v", err)
	}
	if got.Status != domain.StatusProposed {
		t.Fatalf("status = %s", got.Status)
	}
	if got.ClientChangesetID != "cs-1" || got.ScopeKey != "repo:acme/docs#main" {
		t.Fatalf("identity fields: %+v", got)
	}
	if !got.CreatedAt.Equal(at) {
		t.Fatalf("created at = %v, want %v", got.CreatedAt, at)
	}
	if got.PublishedAt != nil {
		t.Fatal("published at must be unset")
	}

	gotFiles, err := store.GetCommitFiles(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get commit files: %v", err)
	}
	if len(gotFiles) != 2 {
		t.Fatalf("stored files len = %d", len(gotFiles))
	}
	if gotFiles[0].FileID != "a.md" || gotFiles[0].OpType != domain.OpTypeUpsert {
		t.Fatalf("first file: %+v", gotFiles[0])
	}
	if gotFiles[1].OpType != domain.OpTypeDelete || gotFiles[1].IncomingContent != "" {
		t.Fatalf("second file: %+v", gotFiles[1])
	}
}

func TestCreateCommitDuplicateClientID(t *testing.T) {
	store := openStore(t)
	at := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)

	first, _ := mustCreate(t, store, "repo:acme/docs#main", "cs-1", at)

	commit, files := proposedCommit("repo:acme/docs#main", "cs-1", at.Add(time.Minute))
	_, _, err := store.CreateCommit(context.Background(), commit, files)
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("err = %v, want %v", err, storage.ErrAlreadyExists)
	}

	found, err := store.FindByScopeAndClientID(context.Background(), "repo:acme/docs#main", "cs-1")
	if err != nil {
		t.Fatalf("find by client id: %v", err)
	}
	if found.ID != first.ID {
		t.Fatalf("found id = %d, want %d", found.ID, first.ID)
	}

	// Same client changeset id under a different scope key is a new commit.
	other, _ := mustCreate(t, store, "repo:acme/wiki#main", "cs-1", at)
	if other.ID == first.ID {
		t.Fatal("distinct scopes must not collide")
	}
}

func TestFindByScopeAndClientIDNotFound(t *testing.T) {
	store := openStore(t)

	_, err := store.FindByScopeAndClientID(context.Background(), "repo:acme/docs#main", "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestListCommitsByScopeKeysetPagination(t *testing.T) {
	store := openStore(t)
	base := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)

	oldest, _ := mustCreate(t, store, "repo:acme/docs#main", "cs-1", base)
	middle, _ := mustCreate(t, store, "repo:acme/docs#main", "cs-2", base.Add(time.Minute))
	newest, _ := mustCreate(t, store, "repo:acme/docs#main", "cs-3", base.Add(2*time.Minute))
	mustCreate(t, store, "repo:acme/wiki#main", "cs-1", base.Add(time.Hour))

	page, err := store.ListCommitsByScope(context.Background(), "repo:acme/docs#main", 2, 0, false)
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if len(page) != 2 || page[0].ID != newest.ID || page[1].ID != middle.ID {
		t.Fatalf("first page: %+v", page)
	}

	rest, err := store.ListCommitsByScope(context.Background(), "repo:acme/docs#main", 2, page[1].ID, false)
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != oldest.ID {
		t.Fatalf("second page: %+v", rest)
	}
}

func TestListCommitsByScopeOldestFirst(t *testing.T) {
	store := openStore(t)
	base := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)

	oldest, _ := mustCreate(t, store, "repo:acme/docs#main", "cs-1", base)
	middle, _ := mustCreate(t, store, "repo:acme/docs#main", "cs-2", base.Add(time.Minute))
	newest, _ := mustCreate(t, store, "repo:acme/docs#main", "cs-3", base.Add(2*time.Minute))

	page, err := store.ListCommitsByScope(context.Background(), "repo:acme/docs#main", 2, 0, true)
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if len(page) != 2 || page[0].ID != oldest.ID || page[1].ID != middle.ID {
		t.Fatalf("first page: %+v", page)
	}

	rest, err := store.ListCommitsByScope(context.Background(), "repo:acme/docs#main", 2, page[1].ID, true)
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != newest.ID {
		t.Fatalf("second page: %+v", rest)
	}
}

func TestListCommitsByScopeTieBreaksOnID(t *testing.T) {
	store := openStore(t)
	at := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)

	first, _ := mustCreate(t, store, "repo:acme/docs#main", "cs-1", at)
	second, _ := mustCreate(t, store, "repo:acme/docs#main", "cs-2", at)

	page, err := store.ListCommitsByScope(context.Background(), "repo:acme/docs#main", 10, 0, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].ID != second.ID || page[1].ID != first.ID {
		t.Fatalf("tie break order: %+v", page)
	}

	rest, err := store.ListCommitsByScope(context.Background(), "repo:acme/docs#main", 10, second.ID, false)
	if err != nil {
		t.Fatalf("list after cursor: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != first.ID {
		t.Fatalf("after cursor: %+v", rest)
	}
}

func TestUpdateCommitStatusConditional(t *testing.T) {
	store := openStore(t)
	at := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	created, _ := mustCreate(t, store, "repo:acme/docs#main", "cs-1", at)

	updated, err := store.UpdateCommitStatus(
		context.Background(),
		created.ID,
		storage.StatusUpdate{Status: domain.StatusReviewing},
		domain.StatusProposed,
	)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.StatusReviewing {
		t.Fatalf("status = %s", updated.Status)
	}

	// The same conditional update now matches zero rows: the race was lost.
	_, err = store.UpdateCommitStatus(
		context.Background(),
		created.ID,
		storage.StatusUpdate{Status: domain.StatusReviewing},
		domain.StatusProposed,
	)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want %v", err, storage.ErrNotFound)
	}

	current, err := store.GetCommit(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get commit: %v", err)
	}
	if current.Status != domain.StatusReviewing {
		t.Fatalf("status after lost race = %s", current.Status)
	}
}

func TestUpdateCommitStatusUnconditional(t *testing.T) {
	store := openStore(t)
	at := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	created, _ := mustCreate(t, store, "repo:acme/docs#main", "cs-1", at)

	updated, err := store.UpdateCommitStatus(
		context.Background(),
		created.ID,
		storage.StatusUpdate{Status: domain.StatusRejected},
	)
	if err != nil {
		t.Fatalf("unconditional update: %v", err)
	}
	if updated.Status != domain.StatusRejected {
		t.Fatalf("status = %s", updated.Status)
	}

	_, err = store.UpdateCommitStatus(
		context.Background(),
		created.ID+999,
		storage.StatusUpdate{Status: domain.StatusRejected},
	)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing commit err = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestUpdateCommitStatusStampsPublish(t *testing.T) {
	store := openStore(t)
	at := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	created, _ := mustCreate(t, store, "repo:acme/docs#main", "cs-1", at)

	publishedAt := at.Add(time.Hour)
	updated, err := store.UpdateCommitStatus(
		context.Background(),
		created.ID,
		storage.StatusUpdate{
			Status:      domain.StatusPublished,
			PublishedAt: &publishedAt,
			PublishedBy: "publisher-1",
		},
		domain.StatusProposed,
	)
	if err != nil {
		t.Fatalf("publish update: %v", err)
	}
	if updated.PublishedAt == nil || !updated.PublishedAt.Equal(publishedAt) {
		t.Fatalf("published at = %v, want %v", updated.PublishedAt, publishedAt)
	}
	if updated.PublishedBy != "publisher-1" {
		t.Fatalf("published by = %q", updated.PublishedBy)
	}
}

func TestAppendReviewAndLatestReviews(t *testing.T) {
	store := openStore(t)
	at := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	created, files := mustCreate(t, store, "repo:acme/docs#main", "cs-1", at)

	ctx := context.Background()
	first, err := store.AppendReview(ctx, domain.FileReview{
		CommitFileID: files[0].ID,
		Decision:     domain.DecisionAccept,
		ReviewedBy:   "reviewer-1",
		ReviewedAt:   at.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("append first review: %v", err)
	}
	second, err := store.AppendReview(ctx, domain.FileReview{
		CommitFileID:   files[0].ID,
		Decision:       domain.DecisionAmend,
		AmendedContent: "merged content",
		ReviewedBy:     "reviewer-2",
		ReviewedAt:     at.Add(2 * time.Minute),
		Comment:        "kept both edits",
	})
	if err != nil {
		t.Fatalf("append second review: %v", err)
	}
	if second.ID <= first.ID {
		t.Fatalf("review ids not monotonic: %d then %d", first.ID, second.ID)
	}

	latest, err := store.LatestReviews(ctx, created.ID)
	if err != nil {
		t.Fatalf("latest reviews: %v", err)
	}
	got, ok := latest[files[0].ID]
	if !ok {
		t.Fatal("reviewed file missing from latest map")
	}
	if got.ID != second.ID || got.Decision != domain.DecisionAmend || got.AmendedContent != "merged content" {
		t.Fatalf("latest review: %+v", got)
	}
	if _, ok := latest[files[1].ID]; ok {
		t.Fatal("unreviewed file must be absent")
	}

	forFile, err := store.LatestReviewForFile(ctx, files[0].ID)
	if err != nil {
		t.Fatalf("latest review for file: %v", err)
	}
	if forFile.ID != second.ID {
		t.Fatalf("latest for file id = %d, want %d", forFile.ID, second.ID)
	}

	_, err = store.LatestReviewForFile(ctx, files[1].ID)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("pending file err = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestLatestReviewTieBreaksOnID(t *testing.T) {
	store := openStore(t)
	at := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	_, files := mustCreate(t, store, "repo:acme/docs#main", "cs-1", at)

	ctx := context.Background()
	reviewedAt := at.Add(time.Minute)
	if _, err := store.AppendReview(ctx, domain.FileReview{
		CommitFileID: files[0].ID,
		Decision:     domain.DecisionAccept,
		ReviewedBy:   "reviewer-1",
		ReviewedAt:   reviewedAt,
	}); err != nil {
		t.Fatalf("append first: %v", err)
	}
	second, err := store.AppendReview(ctx, domain.FileReview{
		CommitFileID: files[0].ID,
		Decision:     domain.DecisionReject,
		ReviewedBy:   "reviewer-2",
		ReviewedAt:   reviewedAt,
	})
	if err != nil {
		t.Fatalf("append second: %v", err)
	}

	forFile, err := store.LatestReviewForFile(ctx, files[0].ID)
	if err != nil {
		t.Fatalf("latest for file: %v", err)
	}
	if forFile.ID != second.ID || forFile.Decision != domain.DecisionReject {
		t.Fatalf("tie break: %+v", forFile)
	}
}

func TestAppendReviewUnknownFile(t *testing.T) {
	store := openStore(t)

	_, err := store.AppendReview(context.Background(), domain.FileReview{
		CommitFileID: 12345,
		Decision:     domain.DecisionAccept,
		ReviewedBy:   "reviewer-1",
		ReviewedAt:   time.Now(),
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestSummarizeCommits(t *testing.T) {
	store := openStore(t)
	at := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	created, files := mustCreate(t, store, "repo:acme/docs#main", "cs-1", at)
	other, _ := mustCreate(t, store, "repo:acme/docs#main", "cs-2", at.Add(time.Minute))

	ctx := context.Background()
	if _, err := store.AppendReview(ctx, domain.FileReview{
		CommitFileID: files[0].ID,
		Decision:     domain.DecisionAccept,
		ReviewedBy:   "reviewer-1",
		ReviewedAt:   at.Add(time.Minute),
	}); err != nil {
		t.Fatalf("append review: %v", err)
	}

	// Duplicate and unknown ids in the batch are tolerated.
	summaries, err := store.SummarizeCommits(ctx, []int64{created.ID, other.ID, created.ID, 99999})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("summaries len = %d, want 2", len(summaries))
	}

	got := summaries[created.ID]
	if got.TotalFiles != 2 || got.Accepted != 1 || got.Pending != 1 {
		t.Fatalf("summary: %+v", got)
	}
	if got.LineAdditions != 4 || got.LineDeletions != 13 {
		t.Fatalf("line counts: %+v", got)
	}

	untouched := summaries[other.ID]
	if untouched.Pending != 2 || untouched.Accepted != 0 {
		t.Fatalf("untouched summary: %+v", untouched)
	}
	if _, ok := summaries[99999]; ok {
		t.Fatal("unknown commit must be absent")
	}
}

func TestSummarizeCommitsEmptyBatch(t *testing.T) {
	store := openStore(t)

	summaries, err := store.SummarizeCommits(context.Background(), nil)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(summaries) != 0 {
		t.Fatalf("summaries = %+v, want empty", summaries)
	}
}

func TestOpenAppliesPragmas(t *testing.T) {
	store := openStore(t)

	var foreignKeys int
	if err := store.sqlDB.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("read foreign_keys pragma: %v", err)
	}
	if foreignKeys != 1 {
		t.Fatalf("foreign_keys = %d, want 1", foreignKeys)
	}

	var journalMode string
	if err := store.sqlDB.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("read journal_mode pragma: %v", err)
	}
	if journalMode != "wal" {
		t.Fatalf("journal_mode = %q, want wal", journalMode)
	}
}

func TestDeletingCommitCascades(t *testing.T) {
	store := openStore(t)
	at := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	created, files := mustCreate(t, store, "repo:acme/docs#main", "cs-1", at)

	ctx := context.Background()
	if _, err := store.AppendReview(ctx, domain.FileReview{
		CommitFileID: files[0].ID,
		Decision:     domain.DecisionAccept,
		ReviewedBy:   "reviewer-1",
		ReviewedAt:   at.Add(time.Minute),
	}); err != nil {
		t.Fatalf("append review: %v", err)
	}

	if _, err := store.sqlDB.ExecContext(ctx, `DELETE FROM commits WHERE id = ?`, created.ID); err != nil {
		t.Fatalf("delete commit: %v", err)
	}

	remaining, err := store.GetCommitFiles(ctx, created.ID)
	if err != nil {
		t.Fatalf("get commit files: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("files survived commit delete: %+v", remaining)
	}
	var reviewCount int
	if err := store.sqlDB.QueryRow(`SELECT COUNT(*) FROM commit_file_reviews`).Scan(&reviewCount); err != nil {
		t.Fatalf("count reviews: %v", err)
	}
	if reviewCount != 0 {
		t.Fatalf("reviews survived cascade: %d", reviewCount)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestStoreNilGuards(t *testing.T) {
	var store *Store
	if err := store.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
	if _, err := store.GetCommit(context.Background(), 1); err == nil {
		t.Fatal("expected error from nil store")
	}
}
