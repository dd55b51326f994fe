// Package migrations embeds the Postgres schema for the relational profile store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
