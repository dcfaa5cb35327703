// Package shutdown provides graceful shutdown for minikv.
//
// This package handles process termination signals:
//
//   - Signal handling (SIGINT, SIGTERM)
//   - Timeout-bounded cleanup hooks, run in reverse order of registration
//   - Programmatic shutdown via Trigger
//
// Usage:
//
//	h := shutdown.NewHandler(10 * time.Second)
//	h.OnShutdown(srv.Shutdown)
//	err := h.Wait(ctx)
//
// For code that only needs a cancellable context:
//
//	ctx, stop := shutdown.WithSignals(context.Background())
//	defer stop()
package shutdown
