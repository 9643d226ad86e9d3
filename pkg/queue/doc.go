/*
Package queue implements the discoverer's thread-safe job queue: a bounded
pending-checks counter, a fair pop order among ready jobs, an error
sideband for task/batch failures, and the SNMPv3 mutual-exclusion token
(spec.md §4.1).

The teacher's manual pthread mutex + condition variable design (spec.md §9
"Manual pthreads + mutexes + cond vars") becomes one sync.Mutex guarding all
queue state plus a sync.Cond for Wait/NotifyOne/NotifyAll, matching the Go
guidance in the same design note.

Lock discipline: Queue's mutex is the one named "Queue mutex" in spec.md §5
and must never be held across an I/O call or nested inside the ResultStore's
mutex (Queue → ResultStore is the only permitted acquisition order).
*/
package queue
