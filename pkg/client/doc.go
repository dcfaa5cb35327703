// Package client talks to a minikv server.
//
// Client is the context-aware client: each operation writes one request
// frame and reads its reply on a single connection, honouring the
// caller's deadline and cancellation. Subscribe turns a Client into a
// Subscriber, which receives pushed messages.
//
// Blocking wraps a Client for callers that do not want to manage contexts.
// It owns a dedicated executor goroutine and runs every operation there to
// completion before returning.
//
// Pool keeps a bounded set of Clients for concurrent callers.
package client
