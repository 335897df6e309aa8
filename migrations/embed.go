// Package migrations embeds SQL migration files into the binary.
//
// RoomGate applies these at startup, so the SQL files need not exist on the
// target filesystem.
package migrations

import (
	"embed"

	"github.com/nerrad567/roomgate/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
