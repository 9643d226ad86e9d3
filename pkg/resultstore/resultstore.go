package resultstore

import (
	"net"
	"sync"
	"time"

	"github.com/cuemby/discoverer/pkg/checker"
	"github.com/cuemby/discoverer/pkg/types"
)

// Store is the shared map of (druleid, ip) -> Result plus the matching
// outstanding-check counters (spec.md §4.3).
type Store struct {
	mu sync.Mutex

	results       map[types.CheckKey]*types.Result
	incompleteCts map[types.CheckKey]int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		results:       make(map[types.CheckKey]*types.Result),
		incompleteCts: make(map[types.CheckKey]int),
	}
}

// Reserve registers the outstanding-check count for a (druleid, ip) pair at
// task-expansion time, before any worker has dispatched a check against it
// (spec.md §3 "CheckCount ... created when scheduler enqueues").
func (s *Store) Reserve(druleid, ip string, count int) {
	if count <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := types.CheckKey{DRuleID: druleid, IP: ip}
	s.incompleteCts[key] += count
}

// Decrement subtracts by from the (druleid, ip) counter and reports the
// remaining count and whether the key was still present. A missing key
// means the rule's revision changed underneath the in-flight check: the
// caller must discard the partial service and never write to results
// (spec.md §4.3).
func (s *Store) Decrement(druleid, ip string, by int) (remaining int, found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := types.CheckKey{DRuleID: druleid, IP: ip}
	cur, ok := s.incompleteCts[key]
	if !ok {
		return 0, false
	}
	cur -= by
	if cur < 0 {
		cur = 0
	}
	if cur == 0 {
		delete(s.incompleteCts, key)
	} else {
		s.incompleteCts[key] = cur
	}
	return cur, true
}

// MergePartial merges the results from a Checker batch whose
// processed_checks_per_ip matches the task's expected per-ip share,
// decrementing the backing counter for each and moving services into the
// store's accumulated Result (spec.md §4.3).
func (s *Store) MergePartial(druleid string, task *types.Task, partials []checker.PartialResult, expectedPerIP int, now time.Time) {
	for _, p := range partials {
		if p.ProcessedChecksPerIP != expectedPerIP {
			continue
		}
		s.mergeOne(druleid, p, task, now)
	}
}

// MergeFullRange is used after a task completes: it walks every IP in the
// task's iprange, decrementing a reported IP by its ProcessedChecksPerIP
// and an unreported IP by expectedPerIP. IPs the checker never reported are treated as probed
// with zero services; once their counter reaches zero an empty Result
// placeholder is registered so the IP is still recorded as "probed, no
// services" (spec.md §4.3).
func (s *Store) MergeFullRange(druleid string, task *types.Task, partials []checker.PartialResult, expectedPerIP int, now time.Time) {
	byIP := make(map[string]checker.PartialResult, len(partials))
	for _, p := range partials {
		byIP[p.IP] = p
	}

	task.IPRange.Each(func(ip net.IP) bool {
		ipStr := ip.String()
		if p, ok := byIP[ipStr]; ok {
			s.mergeOne(druleid, p, task, now)
			return true
		}
		s.mergeEmpty(druleid, ipStr, expectedPerIP, now)
		return true
	})
}

func (s *Store) mergeOne(druleid string, p checker.PartialResult, task *types.Task, now time.Time) {
	_, found := s.Decrement(druleid, p.IP, p.ProcessedChecksPerIP)
	if !found {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := types.CheckKey{DRuleID: druleid, IP: p.IP}
	r, ok := s.results[key]
	if !ok {
		r = &types.Result{DRuleID: druleid, IP: p.IP}
		s.results[key] = r
	}
	r.Services = append(r.Services, p.Services...)
	r.ProcessedChecksPerIP += p.ProcessedChecksPerIP
	r.Now = now
	if r.DNSName == "" {
		r.DNSName = p.DNSName
	}
	if task.UniqueDCheckID != "" {
		r.UniqueDCheckID = task.UniqueDCheckID
	}
}

func (s *Store) mergeEmpty(druleid, ip string, by int, now time.Time) {
	_, found := s.Decrement(druleid, ip, by)
	if !found {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := types.CheckKey{DRuleID: druleid, IP: ip}
	if _, ok := s.results[key]; ok {
		return
	}
	s.results[key] = &types.Result{DRuleID: druleid, IP: ip, Now: now}
}

// RegisterEmptyJob records the (druleid, "") placeholder a worker writes
// when a job has no hosts to probe at all (spec.md §4.4 step 2).
func (s *Store) RegisterEmptyJob(druleid string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := types.CheckKey{DRuleID: druleid, IP: ""}
	s.results[key] = &types.Result{DRuleID: druleid, IP: "", Now: now}
}

// TakeCompleted extracts up to batchCap Result rows that are eligible to
// flush — their CheckCount is absent or zero — and reports which of the
// rules named in druleDeletions still have incomplete results outstanding
// (spec.md §4.3). Eligible rows are removed from the store.
func (s *Store) TakeCompleted(druleDeletions []string, batchCap int) (flush []types.Result, stillIncomplete map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stillIncomplete = make(map[string]bool, len(druleDeletions))
	wanted := make(map[string]bool, len(druleDeletions))
	for _, id := range druleDeletions {
		wanted[id] = true
	}

	for key := range s.incompleteCts {
		if wanted[key.DRuleID] {
			stillIncomplete[key.DRuleID] = true
		}
	}

	if batchCap <= 0 {
		batchCap = 1000
	}

	for key, r := range s.results {
		if len(flush) >= batchCap {
			break
		}
		if _, incomplete := s.incompleteCts[key]; incomplete {
			continue
		}
		flush = append(flush, *r)
		delete(s.results, key)
	}
	return flush, stillIncomplete
}

// DropRule wipes every (druleid, *) entry from both the results and
// incomplete-counter maps, used when the scheduler detects a rule's
// revision changed underneath in-flight work (spec.md §9): any partial
// result already accumulated under the old revision is discarded rather
// than flushed.
func (s *Store) DropRule(druleid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.results {
		if key.DRuleID == druleid {
			delete(s.results, key)
		}
	}
	for key := range s.incompleteCts {
		if key.DRuleID == druleid {
			delete(s.incompleteCts, key)
		}
	}
}

// Len reports the number of Result rows currently held (used by tests and
// USAGE_STATS-adjacent introspection).
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// PendingCount reports the number of (druleid, ip) keys with a nonzero
// outstanding-check counter.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.incompleteCts)
}
