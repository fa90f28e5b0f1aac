// Package migrations embeds the SQL schema migrations so cmd/migrate can run
// from any working directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
