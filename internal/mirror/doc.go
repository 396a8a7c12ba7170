// Package mirror is the local project mirror: an embedded SQLite database
// holding one project's tasks, dependencies and custom property values.
//
// Every mutation goes through an xlog operation. The operation is rendered
// with sqlgen for SQLite, executed, and (once StartLog was called) appended
// to the local log together with a local transaction id. FetchTransactions
// reads the log back as xlog records for sending to the server, and
// ApplyUpdate executes records received from it.
//
// The database handle is created lazily on first use and discarded by Reset,
// so a Mirror that is never used costs nothing, and state never leaks
// across a reset. All access goes through one connection.
package mirror
