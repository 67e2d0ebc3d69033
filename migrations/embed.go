// Package migrations embeds the SQL schema migrations so the server binary
// can run them at startup without shipping separate files.
package migrations

import "embed"

//go:embed postgres/*.sql
var FS embed.FS
