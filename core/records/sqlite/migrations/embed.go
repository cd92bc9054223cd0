package migrations

import "embed"

// FS contains embedded SQLite migrations for participant records.
//
//go:embed *.sql
var FS embed.FS
