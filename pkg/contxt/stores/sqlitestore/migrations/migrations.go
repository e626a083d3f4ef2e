// Package migrations embeds the SQL migrations of the session store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
