// Package storage persists the keyword and exclusion registries and an audit
// trail of registry changes.
//
// Drivers:
//   - "sqlite":   single database file (default)
//   - "postgres": shared database, schema managed by golang-migrate
//   - "file":     dependency-free JSON lines journal + snapshot
//   - "memory":   process-local, lost on exit
//
// None of the drivers enforce uniqueness: registering the same keyword or
// exclusion twice stores two rows, and a delete removes all of them.
package storage
