package migrations

import "embed"

// FS contains embedded SQLite migrations for admin authorization storage.
//
//go:embed *.sql
var FS embed.FS
