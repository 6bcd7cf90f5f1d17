package domain

// Summary aggregates review state for one commit. Decision counts reflect
// each file's latest review; line counts sum over all files regardless of
// review outcome, because diff stats describe the proposal itself.
type Summary struct {
	TotalFiles    int
	Accepted      int
	Rejected      int
	Amended       int
	Pending       int
	LineAdditions int
	LineDeletions int
}

// MoreRecent reports whether review a is more recent than review b using
// (ReviewedAt, ID) descending. Timestamps alone are not sufficient under
// concurrent writes with coarse clock resolution; the append-only
// auto-incrementing id is the deterministic tiebreaker.
func MoreRecent(a, b FileReview) bool {
	if !a.ReviewedAt.Equal(b.ReviewedAt) {
		return a.ReviewedAt.After(b.ReviewedAt)
	}
	return a.ID > b.ID
}

// LatestByFile folds an append-only review log into the authoritative review
// per commit file: group by file id, reduce each group by (ReviewedAt, ID)
// descending. Files with no review are absent from the result, meaning
// pending. The fold happens at read time; no "latest decision" is ever
// materialized in storage.
func LatestByFile(reviews []FileReview) map[int64]FileReview {
	latest := make(map[int64]FileReview)
	for _, review := range reviews {
		current, ok := latest[review.CommitFileID]
		if !ok || MoreRecent(review, current) {
			latest[review.CommitFileID] = review
		}
	}
	return latest
}

// Summarize folds files and their latest reviews into summary counts.
// The invariant Accepted+Rejected+Amended+Pending == TotalFiles always holds.
func Summarize(files []CommitFile, latest map[int64]FileReview) Summary {
	var summary Summary
	summary.TotalFiles = len(files)
	for _, file := range files {
		summary.LineAdditions += file.LineAdditions
		summary.LineDeletions += file.LineDeletions

		review, ok := latest[file.ID]
		if !ok {
			summary.Pending++
			continue
		}
		switch review.Decision {
		case DecisionAccept:
			summary.Accepted++
		case DecisionReject:
			summary.Rejected++
		case DecisionAmend:
			summary.Amended++
		default:
			summary.Pending++
		}
	}
	return summary
}
