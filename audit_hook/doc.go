// Package audithook is a jobqueue extension that bridges entry lifecycle
// events to an audit trail backend.
//
// Every entry hook emits a structured audit event through the [Recorder]
// interface. The extension assigns a severity (info for normal
// operations, warning for scheduled retries and manual re-runs, critical
// for dead entries) and metadata such as job name, lane, retries, elapsed
// time and errors.
//
// # Logging backend
//
// [SlogRecorder] writes each event as one structured log record:
//
//	eng, _ := engine.New(store,
//	    engine.WithExtension(audithook.New(audithook.SlogRecorder(logger))),
//	)
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionEntryDead,
//	        audithook.ActionEntryRetried,
//	    ),
//	)
package audithook
