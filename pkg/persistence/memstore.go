package persistence

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/discoverer/pkg/types"
)

// MemStore is an in-memory Collaborator+RuleSource, standing in for the
// host daemon's real database during tests and standalone runs (spec.md
// §1 Non-goals: "database I/O" itself is out of scope for this engine).
type MemStore struct {
	mu sync.Mutex

	rules    map[string]types.Rule
	hosts    map[hostKey]*hostRow
	nextHost int
}

type hostKey struct {
	druleid string
	ip      string
}

type hostRow struct {
	id       string
	dnsName  string
	status   types.ServiceStatus
	services map[string]types.Service
	lastSeen time.Time
}

// NewMemStore builds an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		rules: map[string]types.Rule{},
		hosts: map[hostKey]*hostRow{},
	}
}

// PutRule inserts or replaces a rule definition, used by tests to seed the
// store; the standalone binary does not call it.
func (m *MemStore) PutRule(r types.Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[r.DRuleID] = r
}

// Collaborator implementation.

func (m *MemStore) Open() (Handle, error) { return struct{}{}, nil }

func (m *MemStore) Close(_ Handle) error { return nil }

func (m *MemStore) FindHost(_ Handle, druleid, ip string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := hostKey{druleid, ip}
	row, ok := m.hosts[key]
	if !ok {
		m.nextHost++
		row = &hostRow{id: fmt.Sprintf("dhost-%d", m.nextHost), services: map[string]types.Service{}}
		m.hosts[key] = row
	}
	return row.id, nil
}

func (m *MemStore) UpdateHost(_ Handle, druleid, dhostID, ip, dnsName string, status types.ServiceStatus, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := hostKey{druleid, ip}
	row, ok := m.hosts[key]
	if !ok {
		row = &hostRow{id: dhostID, services: map[string]types.Service{}}
		m.hosts[key] = row
	}
	row.dnsName = dnsName
	row.status = status
	row.lastSeen = now
	return nil
}

func (m *MemStore) UpdateService(_ Handle, dhostID string, svc types.Service, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.findByHostID(dhostID)
	if row == nil {
		return fmt.Errorf("memstore: unknown dhost %s", dhostID)
	}
	row.services[serviceKey(svc.CheckType, svc.Port)] = svc
	row.lastSeen = now
	return nil
}

func (m *MemStore) UpdateServiceDown(_ Handle, dhostID string, checkType types.CheckType, port int, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.findByHostID(dhostID)
	if row == nil {
		return fmt.Errorf("memstore: unknown dhost %s", dhostID)
	}
	k := serviceKey(checkType, port)
	svc := row.services[k]
	svc.Port = port
	svc.CheckType = checkType
	svc.Status = types.ServiceStatusDown
	row.services[k] = svc
	row.lastSeen = now
	return nil
}

func (m *MemStore) UpdateDRule(_ Handle, druleid string, errText string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[druleid]
	if !ok {
		return fmt.Errorf("memstore: unknown drule %s", druleid)
	}
	_ = errText
	_ = now
	m.rules[druleid] = r
	return nil
}

// RuleSource implementation.

func (m *MemStore) Revisions() ([]types.Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.Revision, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, types.Revision{DRuleID: r.DRuleID, Revision: r.Revision})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DRuleID < out[j].DRuleID })
	return out, nil
}

func (m *MemStore) DueRules(now time.Time) ([]types.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.Rule
	for _, r := range m.rules {
		if !r.NextCheck.After(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DRuleID < out[j].DRuleID })
	return out, nil
}

func (m *MemStore) Reschedule(druleid string, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[druleid]
	if !ok {
		return fmt.Errorf("memstore: unknown drule %s", druleid)
	}
	r.NextCheck = next
	m.rules[druleid] = r
	return nil
}

func (m *MemStore) NextWakeup(now time.Time) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best time.Time
	found := false
	for _, r := range m.rules {
		if !found || r.NextCheck.Before(best) {
			best = r.NextCheck
			found = true
		}
	}
	return best, found
}

func (m *MemStore) findByHostID(dhostID string) *hostRow {
	for _, row := range m.hosts {
		if row.id == dhostID {
			return row
		}
	}
	return nil
}

func serviceKey(t types.CheckType, port int) string {
	return fmt.Sprintf("%s:%d", t, port)
}
