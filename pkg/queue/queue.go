package queue

import (
	"sync"
	"time"

	"github.com/cuemby/discoverer/pkg/types"
)

// MaxSize is DISCOVERER_QUEUE_MAX_SIZE (spec.md §4.1): the compile-time cap
// on pending_checks_count. The scheduler must never push jobs whose check
// count would drive the counter over this cap.
const MaxSize = 100000

// WaitResult is the outcome of a Wait call.
type WaitResult int

const (
	WaitOK WaitResult = iota
	WaitTimeout
)

// Queue is the discoverer's job queue: job storage, the pending-checks
// counter, the error sideband, and the SNMPv3 token all guarded by a
// single mutex (spec.md §4.1, §5).
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	ready []*types.Job // FIFO of jobs with at least one task ready to run
	jobs  map[string]*types.Job // druleid -> job, the spec's "job_refs"

	pendingChecksCount int
	workersRegistered  int
	snmpv3Allowed      int // initialised to 1, spec.md §4.1

	errors []types.RuleError
}

// New creates an empty Queue with the SNMPv3 token initialised to 1.
func New() *Queue {
	q := &Queue{
		jobs:          make(map[string]*types.Job),
		snmpv3Allowed: 1,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push adds a job to both job_refs and the ready FIFO, and notifies one
// waiting worker.
func (q *Queue) Push(job *types.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.jobs[job.DRuleID] = job
	job.Status = types.JobStatusQueued
	q.ready = append(q.ready, job)
	q.cond.Signal()
}

// Pop removes and returns the next ready job in FIFO order, or nil if none
// is ready. FIFO prevents starvation among ready jobs (spec.md §4.1: "any
// fair order is acceptable but starvation must be prevented").
func (q *Queue) Pop() *types.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *Queue) popLocked() *types.Job {
	if len(q.ready) == 0 {
		return nil
	}
	job := q.ready[0]
	q.ready = q.ready[1:]
	return job
}

// Requeue puts a job back onto the ready FIFO without touching job_refs
// (used by the worker loop when a WAITING job becomes QUEUED again, or
// when a job is re-pushed after yielding a worker slot).
func (q *Queue) Requeue(job *types.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Status = types.JobStatusQueued
	q.ready = append(q.ready, job)
	q.cond.Signal()
}

// RemoveJob drops a job from job_refs entirely (spec.md §3 invariant: "A
// Job is reachable from job_refs iff it is either on the queue, currently
// leased to a worker, or in WAITING status").
func (q *Queue) RemoveJob(druleid string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, druleid)
}

// Job returns the job currently tracked for druleid, if any.
func (q *Queue) Job(druleid string) (*types.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[druleid]
	return j, ok
}

// Wait blocks until a job is ready to pop or timeout elapses. NotifyOne and
// NotifyAll wake a parked Wait, but it parks again unless a job is ready,
// so a notification alone does not end the wait. Every blocking wait releases the queue mutex while
// parked, per spec.md §4.1's "every blocking wait releases that mutex".
func (q *Queue) Wait(timeout time.Duration) WaitResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ready) > 0 {
		return WaitOK
	}

	done := make(chan struct{})
	timer := time.AfterFunc(timeout, func() {
		q.mu.Lock()
		close(done)
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()

	for len(q.ready) == 0 {
		select {
		case <-done:
			return WaitTimeout
		default:
		}
		q.cond.Wait()
	}
	return WaitOK
}

// NotifyOne wakes a single waiter.
func (q *Queue) NotifyOne() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cond.Signal()
}

// NotifyAll wakes every waiter.
func (q *Queue) NotifyAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cond.Broadcast()
}

// PendingChecksCount returns the current pending-checks counter.
func (q *Queue) PendingChecksCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pendingChecksCount
}

// ReserveCapacity attempts to reserve `n` additional pending checks against
// MaxSize. It returns the number actually reserved (which may be less than
// n, including zero) so the scheduler can cap per-rule expansion instead
// of overshooting the cap (spec.md §4.1, §4.5 step 4).
func (q *Queue) ReserveCapacity(n int) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	available := MaxSize - q.pendingChecksCount
	if available <= 0 {
		return 0
	}
	if n > available {
		n = available
	}
	q.pendingChecksCount += n
	return n
}

// ReleaseChecks subtracts `n` from the pending-checks counter (workers
// popping tasks, or the scheduler draining a cancelled job's tasks).
func (q *Queue) ReleaseChecks(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pendingChecksCount -= n
	if q.pendingChecksCount < 0 {
		q.pendingChecksCount = 0
	}
}

// RegisterWorker increments workers_registered (spec.md §4.1).
func (q *Queue) RegisterWorker() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.workersRegistered++
}

// WorkersRegistered returns the number of registered workers.
func (q *Queue) WorkersRegistered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.workersRegistered
}

// TryAcquireSNMPv3 attempts to take the single SNMPv3 execution token
// (spec.md §4.2 "at most one worker may execute an SNMPv3-typed task
// simultaneously").
func (q *Queue) TryAcquireSNMPv3() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.snmpv3Allowed <= 0 {
		return false
	}
	q.snmpv3Allowed--
	return true
}

// ReleaseSNMPv3 returns the SNMPv3 token after a worker completes its task.
func (q *Queue) ReleaseSNMPv3() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.snmpv3Allowed++
}

// AppendError publishes one RuleError onto the error sideband (spec.md
// §4.1, §4.5 step 2).
func (q *Queue) AppendError(druleid, text string, at time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.errors = append(q.errors, types.RuleError{DRuleID: druleid, Text: text, At: at})
}

// DrainErrors removes and returns every RuleError queued since the last
// drain.
func (q *Queue) DrainErrors() []types.RuleError {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.errors) == 0 {
		return nil
	}
	out := q.errors
	q.errors = nil
	return out
}

// ReadyLen reports how many jobs are currently ready to pop (used by tests
// and by USAGE_STATS-adjacent introspection).
func (q *Queue) ReadyLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

// LeaseTask implements spec.md §4.4 steps 2-4 atomically under the queue
// mutex: pop a task from job, release its pending-checks contribution,
// increment workers_used, and either re-queue the job (capacity remains)
// or mark it WAITING (capacity exhausted). The two bool returns are
// (empty, removing): empty means the job had no task and no other worker
// holds one (job already dropped from job_refs, caller registers the
// empty-IP result marker); removing means the job had no task but another
// worker still holds one (job marked REMOVING, caller just loops again).
func (q *Queue) LeaseTask(job *types.Job) (*types.Task, bool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task := job.PopTask()
	if task == nil {
		if job.WorkersUsed == 0 {
			delete(q.jobs, job.DRuleID)
			return nil, true, false
		}
		job.Status = types.JobStatusRemoving
		return nil, false, true
	}

	q.pendingChecksCount -= task.CheckCount
	if q.pendingChecksCount < 0 {
		q.pendingChecksCount = 0
	}

	job.WorkersUsed++
	if job.HasCapacity() {
		job.Status = types.JobStatusQueued
		q.ready = append(q.ready, job)
		q.cond.Signal()
	} else {
		job.Status = types.JobStatusWaiting
	}
	return task, false, false
}

// CompleteTask implements spec.md §4.4 step 6: decrement workers_used, and
// either re-queue a WAITING job (now QUEUED again) or finalize a REMOVING
// job whose task list has drained to empty.
func (q *Queue) CompleteTask(job *types.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job.WorkersUsed--
	if job.WorkersUsed < 0 {
		job.WorkersUsed = 0
	}

	switch job.Status {
	case types.JobStatusWaiting:
		job.Status = types.JobStatusQueued
		q.ready = append(q.ready, job)
		q.cond.Signal()
	case types.JobStatusRemoving:
		if job.WorkersUsed == 0 && len(job.Tasks) == 0 {
			delete(q.jobs, job.DRuleID)
		}
	}
}

// AbortJob implements spec.md §4.2's "On ERR, the entire job is aborted":
// every remaining task is freed, its pending-checks contribution released,
// one RuleError is appended tagged by druleid, and the job is removed from
// job_refs once the last worker holding it completes.
func (q *Queue) AbortJob(job *types.Job, errText string, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range job.Tasks {
		q.pendingChecksCount -= t.CheckCount
	}
	if q.pendingChecksCount < 0 {
		q.pendingChecksCount = 0
	}
	job.Tasks = nil

	q.errors = append(q.errors, types.RuleError{DRuleID: job.DRuleID, Text: errText, At: now})

	if job.WorkersUsed == 0 {
		delete(q.jobs, job.DRuleID)
	} else {
		job.Status = types.JobStatusRemoving
	}
}

// CancelJob implements the scheduler's revision-skew response (spec.md §4.5
// step 2, §9 "stale revisions are silently dropped, not errored"): unlike
// AbortJob, no RuleError is appended. Every remaining task is freed and its
// pending-checks contribution released; the job is dropped from job_refs
// immediately if no worker currently holds a task from it, or marked
// REMOVING so CompleteTask drops it once the last worker returns.
func (q *Queue) CancelJob(druleid string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[druleid]
	if !ok {
		return
	}

	for _, t := range job.Tasks {
		q.pendingChecksCount -= t.CheckCount
	}
	if q.pendingChecksCount < 0 {
		q.pendingChecksCount = 0
	}
	job.Tasks = nil

	if job.WorkersUsed == 0 {
		delete(q.jobs, druleid)
	} else {
		job.Status = types.JobStatusRemoving
	}
}
