/*
Package worker implements the discoverer's fixed-size worker pool (spec.md
§4.4): goroutines that pop a job, lease a task, dispatch it to the
appropriate Checker, merge the results into the ResultStore, and report
idle/busy load back to a TimeKeeper collaborator.

# Loop

Each Worker runs the seven-step loop spec.md §4.4 describes:

 1. Pop a job; if none, wait on the queue for up to one second.
 2. Pop a task from the job. If the job has none left, either register the
    empty-IP result marker (no other worker holds this job) or mark the
    job REMOVING (another worker still does).
 3. Release the task's check-count contribution from the queue's
    pending_checks_count.
 4. Increment workers_used; re-queue the job if it still has capacity, or
    mark it WAITING if the per-job parallelism cap was reached.
 5. Dispatch the task to a Checker outside any lock.
 6. Merge the outcome into the ResultStore, or abort the job on a batch
    error; decrement workers_used and finalize a REMOVING job once empty.
 7. Record busy/idle time with the TimeKeeper.

Cancellation is a polled stop channel checked between job pops only; a
task already dispatched runs to the end of its batch (or its timeout)
before the stop is seen.
*/
package worker
