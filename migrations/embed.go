// Package migrations embeds the Postgres schema for the activity and
// snapshot tables so it can be applied regardless of working directory.
package migrations

import "embed"

// FS is the embedded migrations filesystem (e.g. 001_initial.sql).
//
//go:embed *.sql
var FS embed.FS
