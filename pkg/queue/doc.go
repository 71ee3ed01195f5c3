// Package queue is a small durable task queue.
//
// Three components share the storage through narrow repository interfaces:
//
//   - Enqueuer adds one-time tasks, optionally delayed;
//   - Scheduler turns a Schedule into a pending task whenever one is due;
//   - Worker claims due tasks, runs the registered Handler and records the
//     outcome, retrying with backoff and parking exhausted tasks in a dead
//     letter queue.
//
// Handlers are looked up by task name. NewTaskHandler derives the name from
// the payload type, so enqueueing a value of that type routes to it:
//
//	type ProcessEvent struct{ EventID uuid.UUID }
//
//	w, _ := queue.NewWorker(store)
//	_ = w.RegisterHandler(queue.NewTaskHandler(func(ctx context.Context, p ProcessEvent) error {
//		return processor.Process(ctx, p.EventID)
//	}))
//
//	e, _ := queue.NewEnqueuer(store)
//	_ = e.Enqueue(ctx, ProcessEvent{EventID: id}, queue.WithDelay(time.Minute))
//
// MemoryStorage backs tests and single-process runs. The Postgres storage
// in pkg/storage/postgres claims with FOR UPDATE SKIP LOCKED so any number
// of workers can share one table.
package queue
