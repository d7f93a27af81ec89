// Package migrations embeds the SQLite schema migrations applied by
// golang-migrate at startup.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
