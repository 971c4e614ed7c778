// Package migrations embeds the SQL schema so the binary can migrate the
// history database without files on disk.
package migrations

import "embed"

// FS holds every *.sql migration at its root.
//
//go:embed *.sql
var FS embed.FS
