// Package migrations embeds the goose migrations for the ledger account store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
