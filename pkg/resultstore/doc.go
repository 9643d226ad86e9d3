/*
Package resultstore holds the shared map of partial per-(rule, IP) results
and their outstanding check counters (spec.md §4.3). It is guarded by a
mutex distinct from pkg/queue's: the two must never be held together
across an I/O call, and when a caller genuinely needs both in one
critical section the acquisition order is Queue then ResultStore, never
the reverse (spec.md §5).
*/
package resultstore
