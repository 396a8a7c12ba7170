// Package sqlgen renders xlog operations as executable SQL text.
//
// Generation is pure and deterministic: the same operation and dialect always
// produce byte-identical SQL. Values are inlined as quoted literals because
// the generated text is also what gets executed on replay; identifiers are
// lower-cased and must pass xlog.ValidIdentifier, so they are emitted
// unquoted.
//
// Two dialects exist. Postgres renders Merge as a native MERGE statement.
// SQLite has no MERGE, so Merge becomes a guarded INSERT ... WHERE NOT
// EXISTS followed by an UPDATE that only runs when nothing was inserted, in
// the same statement text.
package sqlgen
