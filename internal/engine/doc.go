// Package engine runs an entity store behind a single owning goroutine.
//
// The entity store has no internal locking. An Engine accepts requests from
// any goroutine, queues them FIFO and executes them one at a time in Run:
//
//   - Do runs a function against the store (reads and Access operations)
//   - Flush runs a persistence pass over pending entities
//   - Load rehydrates entities from the database
//
// Every request is stamped with a monotonic sequence number and a
// correlation id for logging. Callers block until their request completes or
// their context is cancelled; a request whose context is already cancelled
// when dequeued is not executed.
package engine
