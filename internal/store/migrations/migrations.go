// Package migrations embeds the goose SQL migrations for the queue
// database.
package migrations

import "embed"

// FS holds the embedded migration files, applied by goose at store
// startup.
//
//go:embed *.sql
var FS embed.FS
