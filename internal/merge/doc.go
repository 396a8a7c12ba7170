// Package merge decides whether a client transaction built on an old
// server state can be accepted after the server moved on.
//
// Both the server's transactions and the client's transaction are replayed
// concurrently, each in its own REPEATABLE READ database transaction, on a
// disposable copy of the project at the client's base. If both streams
// finish within the timeout and both commit, the client's changes do not
// conflict with the server's and are accepted. A lock wait that outlasts the
// timeout, a serialization failure or a constraint violation rejects them.
package merge
