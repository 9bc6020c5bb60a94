// Package migrations carries the schema files. Importing it for side
// effects hands them to the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/venus-bridge/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.MigrationsFS = files
}
