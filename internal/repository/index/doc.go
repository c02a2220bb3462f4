// Package index implements the persisted package index.
//
// The Store keeps one row per installed repository in a SQLite file, together
// with the names of the links published for it. The schema is versioned in a
// meta table and migrated on open.
package index
