// Package scheduler runs collection work in strictly ordered stages on a
// fixed pool of worker goroutines.
//
// Work added to a stage runs only after every item of all earlier stages,
// including work those items added, has finished. Items of one stage run
// concurrently. A stage is complete once its queue is empty and no worker is
// busy; only then does the next stage open.
//
// Execute blocks the calling goroutine until the final stage completes and
// the finalizer has run. The scheduler is reusable across cycles.
package scheduler
