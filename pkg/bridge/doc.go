// Package bridge runs work submitted from ordinary, possibly blocking code
// on a dedicated background loop.
//
// A Bridge owns a bounded queue and one loop goroutine. Submit places a
// Task on the queue, blocking while the queue is full. The loop receives
// each task and runs it as its own sub-task goroutine, so a slow task never
// delays the next one. Shutdown closes the queue, lets the loop drain what
// was already accepted, and returns only after every sub-task has finished.
//
// Lifecycle:
//
//	Running  --Shutdown-->  Draining  --last sub-task done-->  Stopped
//
// A sub-task that returns an error or panics is reported through
// Config.OnComplete and in the error returned by Shutdown. It never stops
// the loop or affects other sub-tasks.
//
// Usage:
//
//	b := bridge.New(bridge.Config{Capacity: 16})
//	b.Start()
//	id, err := b.Submit(ctx, bridge.Task{Name: "set", Run: fn})
//	...
//	err = b.Shutdown(ctx)
package bridge
