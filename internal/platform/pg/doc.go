// Package pg provides the PostgreSQL connection pool, startup health
// checks and schema migrations for deployments that keep run history
// in a shared database instead of the embedded SQLite file.
package pg
