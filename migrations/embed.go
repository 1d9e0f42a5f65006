// Package migrations holds the versioned SQL schema applied by database.Migrator
package migrations

import "embed"

// FS contains every NNN_name.sql migration file
//
//go:embed *.sql
var FS embed.FS
