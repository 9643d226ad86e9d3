package checker

import (
	"context"
	"net"
	"sync"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/cuemby/discoverer/pkg/types"
)

// ICMPChecker batches every IP in a task into concurrent pingers
// (spec.md §4.2 "IcmpBatch"), grounded on pro-bing rather than a
// hand-rolled raw-socket implementation.
type ICMPChecker struct {
	deps    Deps
	Count   int
	Timeout time.Duration
}

// NewICMPChecker constructs an ICMPChecker with production defaults: three
// probes per host, bounded by a two second overall timeout.
func NewICMPChecker(deps Deps) *ICMPChecker {
	return &ICMPChecker{deps: deps, Count: 3, Timeout: 2 * time.Second}
}

// ExpectedChecksPerIP is always one: ICMP contributes a single up/down
// verdict per host regardless of probe count.
func (c *ICMPChecker) ExpectedChecksPerIP(task *types.Task) int {
	return 1
}

// DispatchBatch pings every IP in the task concurrently and reports one
// PartialResult per host. Per spec.md §4.2, ICMP checks never fail the
// batch on a single host timeout — a host that doesn't answer is simply
// reported down. A pinger that cannot be built for a host likewise only
// leaves that host down; DispatchBatch returns Err only when ctx is done.
func (c *ICMPChecker) DispatchBatch(ctx context.Context, task *types.Task) Outcome {
	if err := ctx.Err(); err != nil {
		return Outcome{Err: err}
	}

	var ips []net.IP
	task.IPRange.Each(func(ip net.IP) bool {
		ips = append(ips, ip)
		return true
	})

	results := make([]PartialResult, len(ips))
	var wg sync.WaitGroup
	for i, ip := range ips {
		wg.Add(1)
		go func(i int, ip net.IP) {
			defer wg.Done()
			results[i] = c.pingOne(ctx, ip)
		}(i, ip)
	}
	wg.Wait()

	select {
	case <-ctx.Done():
		return Outcome{Err: ctx.Err()}
	default:
	}

	return Outcome{Results: results}
}

func (c *ICMPChecker) pingOne(ctx context.Context, ip net.IP) PartialResult {
	ipStr := ip.String()
	pr := PartialResult{IP: ipStr, ProcessedChecksPerIP: 1}

	pinger, err := probing.NewPinger(ipStr)
	if err != nil {
		return pr
	}
	pinger.Count = c.Count
	pinger.Timeout = c.Timeout
	pinger.SetPrivileged(true)

	if err := pinger.RunWithContext(ctx); err != nil {
		return pr
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv > 0 {
		pr.Services = append(pr.Services, types.Service{
			CheckType: types.CheckTypeICMP,
			Status:    types.ServiceStatusUp,
		})
		if c.deps.DNS != nil {
			if name, err := c.deps.DNS.ResolveAddr(ipStr); err == nil {
				pr.DNSName = name
			}
		}
	}
	return pr
}
