// Package kvserver implements the minikv TCP server.
//
// The Server binds one address and accepts connections forever. Every
// accepted connection is handed to its own worker goroutine, which reads
// request frames, executes GET and SET against a store, and writes one
// response per request in arrival order. By default each worker creates a
// fresh store, so data written on one connection is invisible to every
// other connection; the "shared" store mode replaces this with a single
// store used by all workers.
//
// PUBLISH, SUBSCRIBE and UNSUBSCRIBE are served when a pub/sub hub is
// configured and answered with an "unimplemented" error otherwise. A
// connection with at least one subscription is in subscriber mode: it
// receives ["message", channel, payload] pushes and accepts only SUBSCRIBE
// and UNSUBSCRIBE until its last subscription is removed.
//
// Worker failures are confined to their connection. A panic in a worker is
// recovered and logged, and only that connection is closed.
package kvserver
