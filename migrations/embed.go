// Package migrations embeds SQL migration files into the binary so the
// schema can be applied without SQL files on the filesystem.
package migrations

import (
	"embed"

	"github.com/skyeyinkun/homelink-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
