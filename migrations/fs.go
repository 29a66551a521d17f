// Package migrations embeds the SQL schema migrations for the booking saga
// service.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
