package db

import "database/sql"

// DB wraps the raw sql.DB handle so storage packages depend on
// this package instead of database/sql directly.
type DB struct {
	*sql.DB
}
