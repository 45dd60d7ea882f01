// Package ext defines the extension system for the job engine.
//
// Extensions are notified of entry lifecycle events and can react to
// them, for example by recording metrics or streaming events to clients.
// Each hook is a separate interface so extensions opt in only to the
// events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	func (e *MyExtension) OnEntryProcessed(ctx context.Context, en *entry.Entry, elapsed time.Duration) error {
//	    log.Printf("entry %d processed in %s", en.ID, elapsed)
//	    return nil
//	}
//
// # Entry Lifecycle Hooks
//
//   - [EntryEnqueued] fires after an entry is persisted and scheduled
//   - [EntryStarted] fires when a worker begins an attempt
//   - [EntryProcessed] fires after a successful attempt
//   - [EntryFailed] fires after a failed attempt that will be retried
//   - [EntryDead] fires when an entry exhausts its retries
//   - [EntryRetried] fires when a failed or dead entry is manually retried
//
// # Other Hooks
//
//   - [Shutdown] fires while the engine stops
//
// The [Registry] fans out each event to the registered extensions that
// implement the corresponding hook.
package ext
