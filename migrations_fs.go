package ltibridge

import (
	"embed"
	"io/fs"
)

// migrationsFS contains the full go-lti-bridge SQL migration tree,
// including dialect alternatives under data/sql/migrations/sqlite.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the embedded migration tree.
func GetMigrationsFS() fs.FS {
	return migrationsFS
}
