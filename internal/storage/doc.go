// Package storage keeps the server-side state of every project in its own
// Postgres schema: the transaction log, the project file snapshots and the
// project's task tables.
//
// A project schema is cloned from a template schema the first time the
// project is touched. Every storage call runs in one database transaction
// with search_path pinned to the project schema.
package storage
