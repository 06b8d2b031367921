// Package cycle runs the periodic crawl/reconcile/dispatch loop. A cycle
// polls every registered site adapter, diffs the results against the
// stored release labels, and hands each change to the dispatcher. Cycles
// are single-flight: a trigger that lands while one is running is
// rejected, never queued.
package cycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"mangawatch/internal/crawler"
	"mangawatch/internal/notify"
	"mangawatch/internal/release"
	"mangawatch/internal/storage"
	logx "mangawatch/pkg/logx"
)

// ErrCycleRunning is returned by Run when a previous cycle has not
// finished yet. Callers on a schedule should log it and move on.
var ErrCycleRunning = errors.New("cycle already running")

const defaultWorkers = 4

// Config tunes cycle execution.
type Config struct {
	// Workers is the number of parallel dispatch workers. 0 means the
	// default (4). Crawling is always sequential per adapter.
	Workers int
}

// Report summarizes one finished cycle.
type Report struct {
	Items    int
	Adapters int
	Crawled  int
	Events   int

	Sent      int
	Failed    int
	Dropped   int
	Swallowed int
	Purged    int

	Elapsed time.Duration
}

// Runner owns cycle execution. Adapters run in registration order so
// reconciliation output stays deterministic across runs.
type Runner struct {
	store    storage.Store
	adapters []crawler.Adapter
	disp     *notify.Dispatcher
	log      logx.Logger
	workers  int

	mu sync.Mutex
}

func NewRunner(cfg Config, store storage.Store, adapters []crawler.Adapter, disp *notify.Dispatcher, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Runner{
		store:    store,
		adapters: adapters,
		disp:     disp,
		log:      log,
		workers:  workers,
	}
}

// Run executes one full cycle. It returns ErrCycleRunning without doing
// any work when another cycle is still in flight.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	if !r.mu.TryLock() {
		return Report{}, ErrCycleRunning
	}
	defer r.mu.Unlock()

	start := time.Now()
	rep := Report{Adapters: len(r.adapters)}

	items, err := r.store.TrackedItems(ctx)
	if err != nil {
		return rep, err
	}
	rep.Items = len(items)

	batches := r.crawl(ctx, &rep)
	events := release.Reconcile(items, batches)
	rep.Events = len(events)

	if len(events) == 0 {
		rep.Elapsed = time.Since(start)
		r.log.Debug("cycle complete, no changes",
			logx.Int("items", rep.Items),
			logx.Duration("elapsed", rep.Elapsed))
		return rep, nil
	}

	r.dispatch(ctx, events, &rep)

	rep.Elapsed = time.Since(start)
	r.log.Info("cycle complete",
		logx.Int("items", rep.Items),
		logx.Int("events", rep.Events),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
		logx.Int("dropped", rep.Dropped),
		logx.Int("purged", rep.Purged),
		logx.Duration("elapsed", rep.Elapsed))
	return rep, nil
}

// crawl polls every adapter in order. A failing adapter contributes an
// empty batch and the cycle goes on; its items simply see no records and
// keep their stored labels.
func (r *Runner) crawl(ctx context.Context, rep *Report) []release.Batch {
	batches := make([]release.Batch, 0, len(r.adapters))
	for _, a := range r.adapters {
		records, err := a.LatestReleases(ctx)
		if err != nil {
			r.log.Warn("crawl failed",
				logx.String("site", string(a.Site())),
				logx.Err(err))
			batches = append(batches, release.Batch{Site: a.Site()})
			continue
		}
		rep.Crawled += len(records)
		batches = append(batches, release.Batch{Site: a.Site(), Records: records})
	}
	return batches
}

func (r *Runner) dispatch(ctx context.Context, events []release.ChangeEvent, rep *Report) {
	snap, err := r.store.LocaleSnapshot(ctx)
	if err != nil {
		r.log.Warn("locale snapshot failed, defaults apply", logx.Err(err))
	}
	state := notify.NewCycleState(snap)

	workers := r.workers
	if workers > len(events) {
		workers = len(events)
	}

	jobs := make(chan release.ChangeEvent)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range jobs {
				out := r.disp.Dispatch(ctx, ev, state)
				mu.Lock()
				rep.Sent += out.Sent
				rep.Failed += out.Failed
				rep.Dropped += out.Dropped
				rep.Swallowed += out.Swallowed
				rep.Purged += len(out.Purged)
				mu.Unlock()
			}
		}()
	}
	for _, ev := range events {
		jobs <- ev
	}
	close(jobs)
	wg.Wait()
}
