// Package service orchestrates changeset operations: idempotent commit
// creation, the append-only review ledger, summaries, and the guarded
// status lifecycle. It owns no transport; callers bring their own.
package service

import (
	"time"

	"github.com/quillsync/quillsync/internal/services/changeset/storage"
)

// Engine coordinates changeset operations over a storage backend.
type Engine struct {
	store storage.Store
	now   func() time.Time
}

// New builds an Engine. A nil clock defaults to time.Now.
func New(store storage.Store, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{store: store, now: now}
}

func (e *Engine) ready() bool {
	return e != nil && e.store != nil
}
