package migrations

import "embed"

// FS contains embedded SQLite migrations for changeset storage.
//
//go:embed *.sql
var FS embed.FS
