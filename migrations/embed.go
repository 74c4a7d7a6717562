// Package migrations embeds the SQL schema for the connection history
// database so the binary carries its own schema.
package migrations

import "embed"

// FS holds the *.up.sql files at its root. Pass it to database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
