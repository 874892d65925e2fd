// Package db embeds the postgres schema migrations.
package db

import "embed"

// Dir is the directory of the migration files inside Migrations.
const Dir = "pg"

//go:embed pg/*.sql
var Migrations embed.FS
