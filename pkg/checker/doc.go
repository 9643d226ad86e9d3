/*
Package checker implements the three Checker variants that execute one
task's worth of probes (spec.md §4.2): SyncChecker for one-(ip,port,check)-
at-a-time protocols, ICMPChecker for batched ping, and AsyncChecker for
SNMP and agent checks. AsyncChecker probes one (ip, check) at a time; it
does not share a multiplexer across probes.

This generalizes the teacher's pluggable health.Checker interface
(Check(ctx) Result, Type() CheckType) from "one container, one
check" into "one task, many (ip, port, check) triples, one partial
Result per IP" — the capability-set redesign spec.md §9 asks for in place
of a switch(dcheck->type).
*/
package checker
