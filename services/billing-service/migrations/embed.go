// Package migrations embeds the billing database schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// LockKey serializes concurrent migrators of this database.
const LockKey int64 = 7_003
