// Package migrations embeds the SQL migrations applied at startup and by
// the migrate command.
package migrations

import "embed"

// FS holds the embedded migration files.
//
//go:embed *.sql
var FS embed.FS
