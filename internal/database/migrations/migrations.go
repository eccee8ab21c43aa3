// Package migrations embeds the SQL schema migrations applied on startup.
// The golang-migrate library reads these files through the iofs driver.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Version is the schema version the application expects.
const Version = 1
