package persistence

import (
	"time"

	"github.com/cuemby/discoverer/pkg/types"
)

// Handle is an opaque connection/transaction handle returned by Open and
// threaded through every call in one flush cycle, matching spec.md §6's
// "open() -> handle ... close(handle)" lifecycle.
type Handle interface{}

// Collaborator is the external persistence interface spec.md §6 specifies
// for writing discovered hosts/services: "database I/O for ... persisting
// discovered hosts/services" is out of scope; only this interface is.
type Collaborator interface {
	Open() (Handle, error)
	Close(h Handle) error

	// UpdateService records one discovered service against a discovered
	// host (spec.md §6, scenario 1: "update_service(R1, dhost=?, 22, UP,
	// '', now)").
	UpdateService(h Handle, dhostID string, svc types.Service, now time.Time) error

	// UpdateServiceDown records a service that was previously known but
	// did not respond this cycle.
	UpdateServiceDown(h Handle, dhostID string, checkType types.CheckType, port int, now time.Time) error

	// UpdateHost upserts the discovered host row for (druleid, ip),
	// recording its DNS name and up/down status (spec.md §6, scenario 1:
	// "update_host(R1, dhost, '10.0.0.1', '<dns>', UP, now)").
	UpdateHost(h Handle, druleid, dhostID, ip, dnsName string, status types.ServiceStatus, now time.Time) error

	// UpdateDRule records a rule's latest error text (possibly empty) and
	// timestamp, called once per tick per rule that produced an empty-IP
	// result (spec.md §4.5 step 3, §7 kind 3).
	UpdateDRule(h Handle, druleid string, errText string, now time.Time) error

	// FindHost resolves the discovered-host id for (druleid, ip),
	// creating the row on first sight of that IP for the rule (spec.md §6
	// "find_host(druleid, ip) -> dhost").
	FindHost(h Handle, druleid, ip string) (dhostID string, err error)
}

// RuleSource is the external collaborator the scheduler reads rule
// definitions from and reschedules against (spec.md §1 "database I/O for
// reading rule definitions" is out of scope; only the interface is
// specified here, grounded on spec.md §4.5's step 1 and step 5 wording).
type RuleSource interface {
	// Revisions returns the (druleid, revision) pair for every currently
	// defined rule (spec.md §4.5 step 1).
	Revisions() ([]types.Revision, error)

	// DueRules returns every rule whose nextcheck is at or before now
	// (spec.md §4.5 step 4).
	DueRules(now time.Time) ([]types.Rule, error)

	// Reschedule sets a rule's next check time (spec.md §4.5 step 5:
	// "drule_queue(now, id, delay)").
	Reschedule(druleid string, next time.Time) error

	// NextWakeup reports the soonest nextcheck across all defined rules,
	// used to bound the scheduler's sleep (spec.md §4.5 step 6). The
	// second return is false if no rule is defined at all.
	NextWakeup(now time.Time) (time.Time, bool)
}
