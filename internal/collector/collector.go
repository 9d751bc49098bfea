// Package collector implements the per-phase measurement pipeline: N
// concurrent workers emit a stream of measurements into a single collector
// under a time budget, without dropping samples or blocking the hot path.
package collector

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ProgressFunc is invoked roughly every 100ms with a best-effort snapshot
// of the measurements collected so far. It must return quickly; a slow
// implementation only delays the next progress tick, never measurement
// emission.
type ProgressFunc[T any] func(snapshot []T)

// WorkerFunc drives one worker's transport loop. It must emit each
// measurement via emit(m) as it completes, and return when ctx is done or
// on a fatal setup error (having first emitted a single failure
// measurement for that error, per the phase contract).
type WorkerFunc[T any] func(ctx context.Context, workerID int, emit func(T))

// Run drives workerCount concurrent workers until ctx is done (or until
// returns early, e.g. D=0 yielding zero measurements), and returns every
// measurement observed across all workers plus the wall-clock duration of
// the phase. Ordering across workers is not guaranteed; ordering within a
// single worker's contributions is preserved.
func Run[T any](ctx context.Context, workerCount int, work WorkerFunc[T], progress ProgressFunc[T]) ([]T, time.Duration) {
	start := time.Now()

	if workerCount < 1 {
		workerCount = 1
	}

	// Unbuffered: the collector drains it continuously so a send only
	// blocks as long as it takes the collector goroutine to receive, and
	// emit's gctx.Done() escape keeps that bounded once the phase ends.
	ch := make(chan T)

	var buf []T
	var bufMu sync.Mutex // try-lock-only, progress-read path only

	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for m := range ch {
			bufMu.Lock()
			buf = append(buf, m)
			bufMu.Unlock()
		}
	}()

	var stopProgress chan struct{}
	var progressDone chan struct{}
	if progress != nil {
		stopProgress = make(chan struct{})
		progressDone = make(chan struct{})
		go func() {
			defer close(progressDone)
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-stopProgress:
					return
				case <-ticker.C:
					if bufMu.TryLock() {
						snapshot := append([]T(nil), buf...)
						bufMu.Unlock()
						progress(snapshot)
					}
				}
			}
		}()
	}

	group, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workerCount; w++ {
		workerID := w
		group.Go(func() error {
			// Each worker keeps its own local slice for ordering within
			// itself; the shared channel send is the only path to the
			// collector's authoritative buffer. A send waits only until
			// the collector goroutine receives it; once gctx is done a
			// send gives up instead of waiting.
			var local []T
			emit := func(m T) {
				local = append(local, m)
				select {
				case ch <- m:
				case <-gctx.Done():
				}
			}
			work(gctx, workerID, emit)
			return nil
		})
	}

	// A worker join error is fatal to the phase; workers here never return
	// an error (transport failures become Failure measurements), so this
	// only surfaces genuine programming bugs.
	_ = group.Wait()

	close(ch)
	<-collectorDone
	if progress != nil {
		close(stopProgress)
		<-progressDone
	}

	return buf, time.Since(start)
}
