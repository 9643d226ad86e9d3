package scheduler

import (
	"github.com/cuemby/discoverer/pkg/types"
)

// expandRule enumerates a rule's checks into one Task per check family
// (spec.md §4.5 step 4 "process_rule"), fixing each task's CheckCount and
// returning the total pending-checks contribution the whole job would
// make along with the per-IP contribution ResultStore must reserve.
//
// Checks are grouped by the same family distinction pkg/checker.
// NewForCheckType uses, so every task's checks resolve to exactly one
// Checker implementation: ICMP pings batch together, SNMP/AGENT checks
// batch together under the async driver, and every remaining
// (TCP/HTTP/...) check batches together under the sync driver.
func expandRule(rule types.Rule) (tasks []*types.Task, totalCount int, perIPCount int) {
	var icmp, async, sync []types.Check
	for _, c := range rule.Checks {
		switch {
		case c.Type.IsICMP():
			icmp = append(icmp, c)
		case c.Type.IsSNMP() || c.Type == types.CheckTypeAgent:
			async = append(async, c)
		default:
			sync = append(sync, c)
		}
	}

	ipCount := rule.IPRange.Count()

	addGroup := func(kind types.TaskKind, checks []types.Check, perIP int) {
		if len(checks) == 0 {
			return
		}
		count := perIP * ipCount
		tasks = append(tasks, &types.Task{
			Kind:           kind,
			IPRange:        rule.IPRange,
			Checks:         checks,
			CheckCount:     count,
			UniqueDCheckID: rule.UniqueCheckID,
		})
		totalCount += count
		perIPCount += perIP
	}

	addGroup(types.TaskKindICMP, icmp, icmpPerIP(icmp))
	addGroup(types.TaskKindAsync, async, len(async))
	addGroup(types.TaskKindSync, sync, syncPerIP(sync))

	return tasks, totalCount, perIPCount
}

// icmpPerIP is 1 if the rule has any ICMP check (a batch ping probes the
// host once regardless of how many ICMP checks were configured), 0
// otherwise, matching pkg/checker.ICMPChecker.ExpectedChecksPerIP.
func icmpPerIP(checks []types.Check) int {
	if len(checks) == 0 {
		return 0
	}
	return 1
}

// syncPerIP mirrors pkg/checker.SyncChecker.ExpectedChecksPerIP: one check
// per (port, check) pair.
func syncPerIP(checks []types.Check) int {
	n := 0
	for _, c := range checks {
		n += c.Ports.Count()
	}
	return n
}
