// Package dispatch coalesces concurrent image requests onto shared tasks.
//
// A Dispatcher runs three kinds of goroutine:
//
//   - one sequencer, which owns the fingerprint to Task table and is the only
//     goroutine that reads or writes it
//   - a fixed pool of workers, which fetch, decode and transform
//   - one delivery loop, which invokes consumer sinks and the Listener
//
// Submit hands a Request to the sequencer. If a Task for the Request's key is
// already in flight the Request joins it; otherwise a memory cache hit is
// delivered directly, and a miss creates a Task and queues it for the
// workers. When a Task finishes, the sequencer writes the cache, removes the
// Task from the table and hands the whole joined list to the delivery loop in
// one step, so a later Request for the same key either hits the cache or
// starts a fresh Task.
//
// Recoverable failures are retried on the same Task, keeping its joined list,
// after a fixed delay scheduled on a clock.WithDelayedExecution. Cancellation
// is a flag on the Request, checked only when outcomes are delivered.
package dispatch
