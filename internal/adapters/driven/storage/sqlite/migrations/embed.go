// Package migrations holds the SQLite schema as numbered SQL files,
// applied in lexical order when the store opens.
package migrations

import "embed"

// FS exposes the embedded migration files.
//
//go:embed *.sql
var FS embed.FS
