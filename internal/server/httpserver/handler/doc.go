// Package handler provides the HTTP handlers behind the operations
// endpoint: health, readiness and status.
//
// All JSON responses use the Response envelope.
package handler
