package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/discoverer/pkg/checker"
	"github.com/cuemby/discoverer/pkg/log"
	"github.com/cuemby/discoverer/pkg/metrics"
	"github.com/cuemby/discoverer/pkg/queue"
	"github.com/cuemby/discoverer/pkg/resultstore"
	"github.com/cuemby/discoverer/pkg/types"
)

// Worker is one goroutine in the discoverer's fixed-size pool, running the
// loop described in spec.md §4.4.
type Worker struct {
	id    string
	queue *queue.Queue
	store *resultstore.Store
	deps  checker.Deps
	tk    *TimeKeeper

	logger zerolog.Logger
	stop   chan struct{}
}

// Config bundles the collaborators a Worker needs (spec.md §9 "encapsulate
// into a Service value constructed at startup; pass references explicitly
// to workers").
type Config struct {
	ID          string
	Queue       *queue.Queue
	Store       *resultstore.Store
	CheckerDeps checker.Deps
}

// New constructs a Worker. It does not start the loop; call Run (typically
// in its own goroutine) to do that.
func New(cfg Config) *Worker {
	return &Worker{
		id:     cfg.ID,
		queue:  cfg.Queue,
		store:  cfg.Store,
		deps:   cfg.CheckerDeps,
		tk:     NewTimeKeeper(),
		logger: log.WithComponent("worker").With().Str("worker_id", cfg.ID).Logger(),
		stop:   make(chan struct{}),
	}
}

// TimeKeeper returns the worker's busy/idle time tracker, for a Pool to
// register and sample.
func (w *Worker) TimeKeeper() *TimeKeeper { return w.tk }

// ID returns the worker's identifier, as given in Config.
func (w *Worker) ID() string { return w.id }

// Stop signals the loop to exit after its current job. Shutdown sets this
// on every worker then waits for Run to return (spec.md §5).
func (w *Worker) Stop() { close(w.stop) }

// Run is the worker's main loop (spec.md §4.4 steps 1-7). It blocks until
// Stop is called.
func (w *Worker) Run() {
	w.queue.RegisterWorker()
	w.logger.Info().Msg("worker started")

	for {
		select {
		case <-w.stop:
			w.logger.Info().Msg("worker stopped")
			return
		default:
		}

		job := w.queue.Pop()
		if job == nil {
			w.queue.Wait(time.Second)
			continue
		}
		w.handleJob(job)
	}
}

// ProcessOnce runs steps 2 through 6 against a single already-popped job,
// synchronously. It is the seam other packages (the scheduler's tests, in
// particular) use to drive one unit of work without running the full Run
// loop.
func (w *Worker) ProcessOnce(job *types.Job) {
	w.handleJob(job)
}

// handleJob implements steps 2 through 6 for a single popped job.
func (w *Worker) handleJob(job *types.Job) {
	task, empty, removing := w.queue.LeaseTask(job)
	switch {
	case empty:
		// spec.md §4.4 step 2: no tasks left, no other worker holds this
		// job. Register the "rule completed, no hosts" marker.
		w.store.RegisterEmptyJob(job.DRuleID, time.Now())
		return
	case removing:
		// Another worker still holds a task for this job; nothing to do
		// until it finishes (job is now REMOVING).
		return
	}

	w.dispatch(job, task)
	w.queue.CompleteTask(job)
}

// dispatch sends one task to the Checker family matching its checks and
// merges the outcome, or aborts the job on a batch-level error (spec.md
// §4.2 "On ERR, the entire job is aborted").
func (w *Worker) dispatch(job *types.Job, task *types.Task) {
	if len(task.Checks) == 0 {
		return
	}
	chk, err := checker.NewForCheckType(task.Checks[0].Type, w.deps)
	if err != nil {
		w.abort(job, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout(task))
	defer cancel()

	start := time.Now()
	outcome := chk.DispatchBatch(ctx, task)
	w.tk.RecordBusy(time.Since(start))

	checkType := string(task.Checks[0].Type)
	if outcome.Err != nil {
		metrics.ChecksFailedTotal.WithLabelValues(checkType).Inc()
		w.abort(job, outcome.Err)
		return
	}
	metrics.ChecksDispatchedTotal.WithLabelValues(checkType).Add(float64(expectedTotal(task)))

	expectedPerIP := chk.ExpectedChecksPerIP(task)
	w.store.MergeFullRange(job.DRuleID, task, outcome.Results, expectedPerIP, time.Now())
}

// abort implements spec.md §4.2/§7 kind 2 (task/batch failure): the queue
// frees the job's remaining tasks and appends the RuleError, and the
// worker registers the empty-IP marker so the scheduler's next flush
// (spec.md §4.5 step 3) surfaces the error text via update_drule.
func (w *Worker) abort(job *types.Job, err error) {
	now := time.Now()
	w.queue.AbortJob(job, err.Error(), now)
	w.store.RegisterEmptyJob(job.DRuleID, now)
	w.logger.Warn().Str("druleid", job.DRuleID).Err(err).Msg("job aborted")
}

// expectedTotal is the number of (ip, check) outcomes a task's batch
// contributes, used only for the checks_dispatched_total counter.
func expectedTotal(task *types.Task) int {
	return task.CheckCount
}

// taskTimeout bounds a single DispatchBatch call: the longest per-check
// timeout in the task, scaled by the number of IPs it covers (a batch
// driver fans out across the whole range), capped so one pathological
// task cannot wedge a worker indefinitely. Supplemented detail: spec.md
// names the per-check timeout but not a batch-level ceiling.
func taskTimeout(task *types.Task) time.Duration {
	base := 5 * time.Second
	for _, c := range task.Checks {
		if c.Timeout > base {
			base = c.Timeout
		}
	}
	n := task.IPRange.Count()
	if n < 1 {
		n = 1
	}
	d := base * time.Duration(n)
	const ceiling = 5 * time.Minute
	if d > ceiling {
		d = ceiling
	}
	return d
}
