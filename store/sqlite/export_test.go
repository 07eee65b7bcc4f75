package sqlite

import "database/sql"

// DB exposes the handle so tests can bypass the store API.
func (s *Store) DB() *sql.DB { return s.db }
