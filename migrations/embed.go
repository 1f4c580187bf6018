// Package migrations embeds the SQL schema migrations and registers them
// with the database package. Import for side effects:
//
//	import _ "github.com/fieldtrace/fieldtrace-core/migrations"
package migrations

import (
	"embed"

	"github.com/fieldtrace/fieldtrace-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
