// Package migrations embeds the schema migrations applied by cmd/migrate.
package migrations

import "embed"

// FS holds every *.sql migration in this directory
//
//go:embed *.sql
var FS embed.FS
