// Package relaydb holds all the migrations for the intent relay database
package relaydb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the relay database
var Migrations = migrate.NewMigrations()
