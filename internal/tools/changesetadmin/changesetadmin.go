// Package changesetadmin implements the changeset administration command:
// scope listings, review summaries, per-file state, database seeding, and
// the unconditional status override reserved for operators.
package changesetadmin

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	platformcmd "github.com/quillsync/quillsync/internal/platform/cmd"
	platformid "github.com/quillsync/quillsync/internal/platform/id"
	"github.com/quillsync/quillsync/internal/services/changeset/domain"
	"github.com/quillsync/quillsync/internal/services/changeset/service"
	"github.com/quillsync/quillsync/internal/services/changeset/storage"
	"github.com/quillsync/quillsync/internal/services/changeset/storage/sqlite"
)

// Config holds changeset-admin command configuration.
type Config struct {
	DBPath  string        `env:"QUILLSYNC_CHANGESETS_DB_PATH"`
	Timeout time.Duration `env:"QUILLSYNC_ADMIN_TIMEOUT" envDefault:"1m"`

	ScopeKey      string
	List          bool
	PageSize      int
	CursorID      int64
	OrderBy       string
	SummaryIDs    string
	FilesCommitID int64
	ForceCommitID int64
	ForceStatus   string
	PublishedBy   string
	Seed          bool
	JSONOutput    bool
}

// ParseConfig parses flags into a Config. Flag defaults are registered first,
// env.Parse then overrides them from the environment, and explicit flags win
// over both (flag.Parse only writes flags that were actually passed).
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	fs.StringVar(&cfg.DBPath, "db-path", filepath.Join("data", "changesets.db"), "path to changesets sqlite database (default: QUILLSYNC_CHANGESETS_DB_PATH or data/changesets.db)")
	fs.StringVar(&cfg.ScopeKey, "scope", "", "commit scope key, e.g. repo:acme/docs#main")
	fs.BoolVar(&cfg.List, "list", false, "list commits for -scope")
	fs.IntVar(&cfg.PageSize, "page-size", 50, "max commits per -list page")
	fs.Int64Var(&cfg.CursorID, "cursor", 0, "exclusive -list keyset cursor id (0 = from the edge of the ordering)")
	fs.StringVar(&cfg.OrderBy, "order", service.OrderNewestFirst, "-list ordering: "+service.OrderNewestFirst+" or "+service.OrderOldestFirst)
	fs.StringVar(&cfg.SummaryIDs, "summary", "", "comma-separated commit ids to summarize")
	fs.Int64Var(&cfg.FilesCommitID, "files", 0, "commit id to print file review states for")
	fs.Int64Var(&cfg.ForceCommitID, "force-status", 0, "commit id for an unconditional status override")
	fs.StringVar(&cfg.ForceStatus, "status", "", "target status for -force-status")
	fs.StringVar(&cfg.PublishedBy, "published-by", "", "publisher identity stamped when forcing published")
	fs.BoolVar(&cfg.Seed, "seed", false, "create a demo commit in -scope with a generated client changeset id")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output JSON")
	fs.DurationVar(&cfg.Timeout, "timeout", time.Minute, "overall timeout")
	if err := platformcmd.ParseConfigFromArgs(&cfg, fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the changeset-admin command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	modes := 0
	for _, active := range []bool{cfg.List, cfg.SummaryIDs != "", cfg.FilesCommitID > 0, cfg.ForceCommitID > 0, cfg.Seed} {
		if active {
			modes++
		}
	}
	if modes != 1 {
		return errors.New("exactly one of -list, -summary, -files, -force-status, -seed is required")
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open changesets db: %w", err)
	}
	defer store.Close()

	engine := service.New(store, nil)

	switch {
	case cfg.List:
		return runList(ctx, cfg, engine, out)
	case cfg.SummaryIDs != "":
		return runSummary(ctx, cfg, engine, out)
	case cfg.FilesCommitID > 0:
		return runFiles(ctx, cfg, engine, out)
	case cfg.Seed:
		return runSeed(ctx, cfg, engine, out)
	default:
		return runForceStatus(ctx, cfg, store, out, errOut)
	}
}

func runList(ctx context.Context, cfg Config, engine *service.Engine, out io.Writer) error {
	if strings.TrimSpace(cfg.ScopeKey) == "" {
		return errors.New("-scope is required with -list")
	}
	commits, err := engine.ListCommits(ctx, cfg.ScopeKey, cfg.PageSize, cfg.CursorID, cfg.OrderBy)
	if err != nil {
		return fmt.Errorf("list commits: %w", err)
	}
	if cfg.JSONOutput {
		return writeJSON(out, commits)
	}
	for _, commit := range commits {
		fmt.Fprintf(out, "%d\t%s\t%s\t%s\t%s\n",
			commit.ID,
			commit.Status,
			commit.ClientChangesetID,
			commit.CreatedAt.Format(time.RFC3339),
			commit.Message,
		)
	}
	fmt.Fprintf(out, "%d commit(s)\n", len(commits))
	return nil
}

func runSummary(ctx context.Context, cfg Config, engine *service.Engine, out io.Writer) error {
	commitIDs, err := parseCommitIDs(cfg.SummaryIDs)
	if err != nil {
		return err
	}
	summaries, err := engine.Summaries(ctx, commitIDs)
	if err != nil {
		return fmt.Errorf("summarize commits: %w", err)
	}
	if cfg.JSONOutput {
		return writeJSON(out, summaries)
	}
	for _, commitID := range commitIDs {
		summary, ok := summaries[commitID]
		if !ok {
			fmt.Fprintf(out, "%d\tnot found\n", commitID)
			continue
		}
		fmt.Fprintf(out, "%d\tfiles=%d accepted=%d rejected=%d amended=%d pending=%d +%d/-%d\n",
			commitID,
			summary.TotalFiles,
			summary.Accepted,
			summary.Rejected,
			summary.Amended,
			summary.Pending,
			summary.LineAdditions,
			summary.LineDeletions,
		)
	}
	return nil
}

func runFiles(ctx context.Context, cfg Config, engine *service.Engine, out io.Writer) error {
	state, err := engine.CommitReviewState(ctx, cfg.FilesCommitID)
	if err != nil {
		return fmt.Errorf("commit review state: %w", err)
	}
	if cfg.JSONOutput {
		return writeJSON(out, state)
	}
	fmt.Fprintf(out, "commit %d\t%s\t%s\n", state.Commit.ID, state.Commit.Status, state.Commit.ScopeKey)
	for _, file := range state.Files {
		decision := "pending"
		reviewer := "-"
		if file.Latest != nil {
			decision = string(file.Latest.Decision)
			reviewer = file.Latest.ReviewedBy
		}
		fmt.Fprintf(out, "%d\t%s\t%s\t%s\t%s\n", file.File.ID, file.File.FileID, file.File.OpType, decision, reviewer)
	}
	return nil
}

func runSeed(ctx context.Context, cfg Config, engine *service.Engine, out io.Writer) error {
	if strings.TrimSpace(cfg.ScopeKey) == "" {
		return errors.New("-scope is required with -seed")
	}
	clientChangesetID, err := platformid.NewID()
	if err != nil {
		return fmt.Errorf("generate client changeset id: %w", err)
	}
	result, err := engine.Push(ctx, domain.NewCommitInput{
		Seq:               1,
		Message:           "seeded demo commit",
		PushedBy:          "changeset-admin",
		ClientChangesetID: clientChangesetID,
		ScopeKey:          cfg.ScopeKey,
		Files: []domain.NewCommitFileInput{
			{
				FileID:          "demo.md",
				ServerPath:      "docs/demo.md",
				IncomingContent: "# Demo\n\nSeeded by changeset-admin.\n",
				LineAdditions:   3,
				OpType:          domain.OpTypeUpsert,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("seed commit: %w", err)
	}
	if cfg.JSONOutput {
		return writeJSON(out, result)
	}
	fmt.Fprintf(out, "seeded commit %d (%s) in %s\n", result.Commit.ID, result.Commit.ClientChangesetID, result.Commit.ScopeKey)
	return nil
}

// runForceStatus bypasses the transition table. This is the operator-only
// correction path; it talks to the store directly so no expected-status
// predicate is applied.
func runForceStatus(ctx context.Context, cfg Config, store *sqlite.Store, out io.Writer, errOut io.Writer) error {
	target := domain.Status(strings.TrimSpace(cfg.ForceStatus))
	if !target.Valid() {
		return fmt.Errorf("invalid -status %q", cfg.ForceStatus)
	}

	update := storage.StatusUpdate{Status: target}
	if target == domain.StatusPublished {
		if strings.TrimSpace(cfg.PublishedBy) == "" {
			return errors.New("-published-by is required when forcing published")
		}
		at := time.Now().UTC()
		update.PublishedAt = &at
		update.PublishedBy = cfg.PublishedBy
	}

	before, err := store.GetCommit(ctx, cfg.ForceCommitID)
	if err != nil {
		return fmt.Errorf("get commit %d: %w", cfg.ForceCommitID, err)
	}
	if !domain.IsTransitionAllowed(before.Status, target) {
		fmt.Fprintf(errOut, "warning: %s -> %s bypasses the transition table\n", before.Status, target)
	}

	commit, err := store.UpdateCommitStatus(ctx, cfg.ForceCommitID, update)
	if err != nil {
		return fmt.Errorf("force status: %w", err)
	}
	if cfg.JSONOutput {
		return writeJSON(out, commit)
	}
	fmt.Fprintf(out, "commit %d: %s -> %s\n", commit.ID, before.Status, commit.Status)
	return nil
}

func parseCommitIDs(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	commitIDs := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid commit id %q", part)
		}
		commitIDs = append(commitIDs, id)
	}
	if len(commitIDs) == 0 {
		return nil, errors.New("-summary requires at least one commit id")
	}
	return commitIDs, nil
}

func writeJSON(out io.Writer, value any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
