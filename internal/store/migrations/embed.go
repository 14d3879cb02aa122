// Package migrations embeds the inbox schema for golang-migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
