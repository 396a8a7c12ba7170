// Package xlog defines the operation log model exchanged between clients and
// the server: atomic row operations, transaction records and the wire DTOs
// that carry them.
//
// Operation is a sealed interface with exactly four variants (Insert, Update,
// Delete, Merge). Consumers dispatch with an exhaustive type switch and treat
// any other dynamic type as an error.
//
// Key constraints:
//   - Values are nullable strings; typing is left to the database
//   - JSON encoding is deterministic: fixed field order, sorted map keys,
//     no HTML escaping, so replaying a decoded record yields the same SQL
//   - This package imports nothing internal
package xlog
