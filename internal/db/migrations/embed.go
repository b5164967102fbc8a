// Package migrations holds the versioned schema for each database backend.
package migrations

import "embed"

// Postgres contains postgres/NNN_name.up.sql files
//
//go:embed postgres/*.sql
var Postgres embed.FS

// SQLite contains sqlite/NNN_name.up.sql files
//
//go:embed sqlite/*.sql
var SQLite embed.FS
