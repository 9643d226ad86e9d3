package checker

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cuemby/discoverer/pkg/types"
)

// SyncChecker handles one (ip, port, check) at a time: TCP/SMTP/FTP/POP/
// IMAP/NNTP/HTTP/HTTPS/SSH/TELNET/LDAP (spec.md §4.2 "SyncSingle"). Each
// completed probe appends at most one Service per IP.
type SyncChecker struct {
	deps Deps
}

// NewSyncChecker constructs a SyncChecker.
func NewSyncChecker(deps Deps) *SyncChecker {
	return &SyncChecker{deps: deps}
}

// ExpectedChecksPerIP is one check per (port, check) pair this task owns.
func (c *SyncChecker) ExpectedChecksPerIP(task *types.Task) int {
	n := 0
	for _, chk := range task.Checks {
		n += chk.Ports.Count()
	}
	return n
}

// DispatchBatch walks every IP in the task's range and probes every
// (port, check) pair synchronously. A connection-level failure for one
// (ip, port) is a check failure (spec.md §7 kind 1): it is simply omitted
// from the partial result, never returned as a batch error. Only a driver-
// level problem (e.g. the task's context already cancelled) is a batch
// error.
func (c *SyncChecker) DispatchBatch(ctx context.Context, task *types.Task) Outcome {
	if err := ctx.Err(); err != nil {
		return Outcome{Err: err}
	}

	byIP := make(map[string]*PartialResult)
	order := make([]string, 0)

	task.IPRange.Each(func(ip net.IP) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		ipStr := ip.String()
		pr, ok := byIP[ipStr]
		if !ok {
			pr = &PartialResult{IP: ipStr}
			byIP[ipStr] = pr
			order = append(order, ipStr)
		}

		for _, chk := range task.Checks {
			chk.Ports.Each(func(port int) bool {
				svc, ok := c.probeOne(ctx, ipStr, port, chk)
				pr.ProcessedChecksPerIP++
				if ok {
					pr.Services = append(pr.Services, svc)
					if pr.DNSName == "" && c.deps.DNS != nil {
						if name, err := c.deps.DNS.ResolveAddr(ipStr); err == nil {
							pr.DNSName = name
						}
					}
				}
				return true
			})
		}
		return true
	})

	results := make([]PartialResult, 0, len(order))
	for _, ip := range order {
		results = append(results, *byIP[ip])
	}
	return Outcome{Results: results}
}

func (c *SyncChecker) probeOne(ctx context.Context, ip string, port int, chk types.Check) (types.Service, bool) {
	addr := net.JoinHostPort(ip, fmt.Sprintf("%d", port))
	timeout := chk.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch chk.Type {
	case types.CheckTypeHTTP, types.CheckTypeHTTPS:
		return c.probeHTTP(dialCtx, ip, port, chk)
	default:
		return c.probeTCPBanner(dialCtx, addr, port, chk)
	}
}

// probeTCPBanner covers TCP, SMTP, FTP, POP, IMAP, NNTP, SSH, TELNET, LDAP:
// all of them are "connect, optionally read a greeting line, optionally
// check it contains SendString" in the original discoverer.
func (c *SyncChecker) probeTCPBanner(ctx context.Context, addr string, port int, chk types.Check) (types.Service, bool) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return types.Service{}, false
	}
	defer conn.Close()

	if chk.SendString == "" {
		return types.Service{Port: port, CheckType: chk.Type, Status: types.ServiceStatusUp}, true
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	reader := bufio.NewReader(conn)
	line, _ := reader.ReadString('\n')
	if !strings.Contains(line, chk.SendString) {
		return types.Service{}, false
	}
	return types.Service{Port: port, CheckType: chk.Type, Status: types.ServiceStatusUp, Value: strings.TrimSpace(line)}, true
}

func (c *SyncChecker) probeHTTP(ctx context.Context, ip string, port int, chk types.Check) (types.Service, bool) {
	scheme := "http"
	if chk.Type == types.CheckTypeHTTPS {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s/", scheme, net.JoinHostPort(ip, fmt.Sprintf("%d", port)))

	client := &http.Client{
		Timeout: 3 * time.Second,
		// Redirect-following for HTTP is allowed by default (spec.md §4.2);
		// the client's default policy (follow up to 10 redirects) is used.
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // discovery probe, not a trust decision
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.Service{}, false
	}
	resp, err := client.Do(req)
	if err != nil {
		return types.Service{}, false
	}
	defer resp.Body.Close()

	return types.Service{
		Port:      port,
		CheckType: chk.Type,
		Status:    types.ServiceStatusUp,
		Value:     fmt.Sprintf("HTTP/%d.%d %d", resp.ProtoMajor, resp.ProtoMinor, resp.StatusCode),
	}, true
}
