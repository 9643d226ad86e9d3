/*
Package scheduler runs the discoverer's single scheduling loop: the thread
that turns rule definitions into queued work and turns completed work back
into persisted hosts and services.

# Architecture

The scheduler runs one goroutine, ticking roughly every DISCOVERER_DELAY
(or sooner, if results are still draining):

	┌────────────────────────────────────────────────────────────┐
	│                     Scheduler Tick                         │
	└────────────────┬───────────────────────────────────────────┘
	                 │
	                 ▼
	1. Diff rule revisions against in-flight jobs; cancel stale ones
	2. Drain the queue's error sideband
	3. Flush completed results to the persistence collaborator
	4. Expand due rules into jobs, under the queue's capacity cap
	5. Reschedule every rule's nextcheck
	6. Sleep until the soonest nextcheck or the IPC poll interval
	7. While sleeping, serve the Discoverer IPC endpoint

# Core Components

Scheduler: the tick driver. It holds the Queue and ResultStore references,
the RuleSource/Collaborator collaborators, and the config getters used to
resolve per-check timeouts and delay macros.

	sched := scheduler.New(scheduler.Config{...})
	sched.Start()
	defer sched.Stop()

The scheduler keeps one piece of local state across ticks: the last-seen
revision per druleid, used to detect when a rule definition changed
underneath an in-flight job (revision skew, spec kind described in
pkg/resultstore's Decrement doc comment).

# Capacity and Revision Skew

expandDueRules reserves a rule's whole check count at once: if the queue
cannot take all of it, the partial reservation is released, no job is
pushed, a "queue is full" RuleError is recorded, and the rule is
rescheduled by its delay like any other expanded rule. A rule whose revision changes mid-flight has
its job silently cancelled (queue.CancelJob, resultstore.DropRule) rather
than errored — any partial results already accumulated under the old
revision are simply discarded, matching the worker's own
per-key-decrement discard behavior.

# See Also

  - pkg/queue - job storage and pending-checks accounting
  - pkg/resultstore - accumulated per-IP results pending flush
  - pkg/worker - the pool draining jobs the scheduler pushes
  - pkg/persistence - the external rule source and result collaborator
*/
package scheduler
