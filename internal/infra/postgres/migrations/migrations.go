package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the ordered schema history applied by `migrate`.
var Migrations = migrate.NewMigrations()
