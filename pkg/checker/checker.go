package checker

import (
	"context"
	"net"

	"github.com/cuemby/discoverer/pkg/types"
)

// PartialResult is one Checker's view of the services it discovered for a
// single IP, keyed so ResultStore can merge it (spec.md §4.3).
type PartialResult struct {
	IP                   string
	DNSName              string
	Services             []types.Service
	ProcessedChecksPerIP int
}

// Outcome is a Checker's verdict after dispatching a batch: either OK with
// the partial results gathered, or an error that aborts the whole job
// (spec.md §4.2 "On ERR, the entire job is aborted").
type Outcome struct {
	Results []PartialResult
	Err     error
}

// Checker is the capability set implemented once per check family
// (spec.md §9: "one trait/interface with methods {dispatch_batch,
// expected_checks_per_ip} and one implementation per check family").
type Checker interface {
	// DispatchBatch executes every (ip, port, check) triple implied by
	// task against the network (or agent) and returns the partial
	// results gathered, or an error if the batch driver itself failed.
	DispatchBatch(ctx context.Context, task *types.Task) Outcome

	// ExpectedChecksPerIP is the number of checks this family
	// contributes per IP for a given task, used by ResultStore to
	// decide whether a partial result still belongs to the task's
	// revision.
	ExpectedChecksPerIP(task *types.Task) int
}

// AgentDispatcher is the external collaborator that executes AGENT checks.
// The agent wire protocol itself is out of scope (spec.md §1); this
// interface is the seam the AsyncChecker calls through.
type AgentDispatcher interface {
	RequestAgentCheck(ctx context.Context, ip string, key string, timeout int) (string, error)
}

// DNSResolver resolves a discovered IP to a DNS name. It is a narrow
// collaborator so tests can stub it without touching net.LookupAddr.
type DNSResolver interface {
	ResolveAddr(ip string) (string, error)
}

// netResolver is the default DNSResolver backed by the standard resolver.
type netResolver struct{}

func (netResolver) ResolveAddr(ip string) (string, error) {
	names, err := net.LookupAddr(ip)
	if err != nil || len(names) == 0 {
		return "", err
	}
	return names[0], nil
}

// DefaultDNSResolver is the production DNSResolver. No ecosystem library in
// the retrieval pack offers a different idiom for reverse DNS lookup than
// net.LookupAddr, so this one seam stays on the standard library
// (DESIGN.md records this as a deliberate stdlib choice, not an omission).
var DefaultDNSResolver DNSResolver = netResolver{}

// NewForCheckType returns the Checker implementation responsible for the
// given CheckType.
func NewForCheckType(t types.CheckType, deps Deps) (Checker, error) {
	switch {
	case t.IsICMP():
		return NewICMPChecker(deps), nil
	case t.IsSNMP():
		return NewAsyncChecker(deps), nil
	case t == types.CheckTypeAgent:
		return NewAsyncChecker(deps), nil
	default:
		return NewSyncChecker(deps), nil
	}
}

// Deps bundles the collaborators a Checker needs, so constructing one
// never reaches for a package-level global (spec.md §9 "encapsulate into a
// Service value... pass references explicitly").
type Deps struct {
	DNS   DNSResolver
	Agent AgentDispatcher

	// SNMPv3Gate enforces the single-SNMPv3-worker restriction (spec.md
	// §4.2). It is nil until the owning Service wires in the live Queue;
	// AsyncChecker treats a nil gate as "ungated" so unit tests can
	// construct an AsyncChecker without a Queue.
	SNMPv3Gate SNMPv3Gate
}
