// Package migrations embeds the versioned schema applied by tools/migrator.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
