// Package migrations embeds the gateway's SQL schema migrations.
package migrations

import "embed"

// FS holds the golang-migrate files.
//
//go:embed *.sql
var FS embed.FS
