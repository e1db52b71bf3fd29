// Package sqlite opens and migrates the embedded SQLite database used
// for run history. Connection pooling is kept small because SQLite has
// a single writer.
package sqlite
