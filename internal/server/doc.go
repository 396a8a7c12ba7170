// Package server is the transport-free core of the collaboration server.
//
// A single goroutine (Run) owns the per-project transaction counters and
// commits client transactions in arrival order. Transports submit decoded
// InputXlog values with Submit and forward whatever appears on Responses.
package server
