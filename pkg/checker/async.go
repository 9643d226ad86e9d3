package checker

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/cuemby/discoverer/pkg/types"
)

// SNMPv3Gate is the narrow seam AsyncChecker uses to respect the queue's
// single-SNMPv3-worker restriction (spec.md §4.2 "SNMPv3 restriction") without
// importing pkg/queue directly — the checker package stays a leaf.
type SNMPv3Gate interface {
	TryAcquireSNMPv3() bool
	ReleaseSNMPv3()
}

// AsyncChecker drives SNMP (v1/v2c/v3) and AGENT checks, the two families
// spec.md §4.2 groups under "AsyncRange" because both hand work off to a
// collaborator (the SNMP wire conversation, or the external agent) rather
// than blocking a single TCP connection at a time.
type AsyncChecker struct {
	deps Deps
}

// NewAsyncChecker constructs an AsyncChecker. Callers that dispatch SNMPv3
// checks must set deps.SNMPv3Gate to the live Queue so the mutual-exclusion
// token is enforced; the checker itself has no other way to observe it.
func NewAsyncChecker(deps Deps) *AsyncChecker {
	return &AsyncChecker{deps: deps}
}

// ExpectedChecksPerIP is one verdict per check this task owns (each SNMP
// OID walk, or each AGENT key, counts as one check regardless of port
// count — SNMP/agent checks are not fanned out over PortRange).
func (c *AsyncChecker) ExpectedChecksPerIP(task *types.Task) int {
	return len(task.Checks)
}

func (c *AsyncChecker) DispatchBatch(ctx context.Context, task *types.Task) Outcome {
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
			var svc types.Service
			var ok bool
			switch {
			case chk.Type.IsSNMP():
				svc, ok = c.probeSNMP(ctx, ipStr, chk)
			case chk.Type == types.CheckTypeAgent:
				svc, ok = c.probeAgent(ctx, ipStr, chk)
			default:
				continue
			}
			pr.ProcessedChecksPerIP++
			if ok {
				pr.Services = append(pr.Services, svc)
			}
		}
		return true
	})

	results := make([]PartialResult, 0, len(order))
	for _, ip := range order {
		results = append(results, *byIP[ip])
	}
	return Outcome{Results: results}
}

func (c *AsyncChecker) probeSNMP(ctx context.Context, ip string, chk types.Check) (types.Service, bool) {
	if chk.Type.IsSNMPv3() && c.deps.SNMPv3Gate != nil {
		if !c.deps.SNMPv3Gate.TryAcquireSNMPv3() {
			return types.Service{}, false
		}
		defer c.deps.SNMPv3Gate.ReleaseSNMPv3()
	}
	if chk.SNMP == nil {
		return types.Service{}, false
	}

	params := &gosnmp.GoSNMP{
		Target:  ip,
		Port:    161,
		Timeout: chk.Timeout,
		Retries: 1,
		Context: ctx,
	}
	if params.Timeout <= 0 {
		params.Timeout = 2 * time.Second
	}

	switch chk.Type {
	case types.CheckTypeSNMPv1:
		params.Version = gosnmp.Version1
		params.Community = chk.SNMP.Community
	case types.CheckTypeSNMPv2c:
		params.Version = gosnmp.Version2c
		params.Community = chk.SNMP.Community
	case types.CheckTypeSNMPv3:
		params.Version = gosnmp.Version3
		params.SecurityModel = gosnmp.UserSecurityModel
		params.MsgFlags = authPrivFlags(chk.SNMP)
		params.ContextName = chk.SNMP.ContextName
		params.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 chk.SNMP.Username,
			AuthenticationProtocol:   authProtocol(chk.SNMP.AuthProtocol),
			AuthenticationPassphrase: chk.SNMP.AuthPassphrase,
			PrivacyProtocol:          privacyProtocol(chk.SNMP.PrivacyProtocol),
			PrivacyPassphrase:        chk.SNMP.PrivacyPassword,
		}
	default:
		return types.Service{}, false
	}

	if err := params.Connect(); err != nil {
		return types.Service{}, false
	}
	defer params.Conn.Close()

	oid := chk.SNMP.OID
	if oid == "" {
		oid = ".1.3.6.1.2.1.1.1.0" // sysDescr.0
	}
	resp, err := params.Get([]string{oid})
	if err != nil || len(resp.Variables) == 0 {
		return types.Service{}, false
	}
	if resp.Variables[0].Type == gosnmp.NoSuchObject || resp.Variables[0].Type == gosnmp.NoSuchInstance {
		return types.Service{}, false
	}

	return types.Service{
		CheckType: chk.Type,
		Status:    types.ServiceStatusUp,
		Value:     fmt.Sprintf("%v", resp.Variables[0].Value),
	}, true
}

func (c *AsyncChecker) probeAgent(ctx context.Context, ip string, chk types.Check) (types.Service, bool) {
	if c.deps.Agent == nil {
		return types.Service{}, false
	}
	timeout := int(chk.Timeout / time.Second)
	if timeout <= 0 {
		timeout = 3
	}
	value, err := c.deps.Agent.RequestAgentCheck(ctx, ip, chk.AgentKey, timeout)
	if err != nil {
		return types.Service{}, false
	}
	return types.Service{
		CheckType: types.CheckTypeAgent,
		Status:    types.ServiceStatusUp,
		Value:     value,
	}, true
}

func authPrivFlags(c *types.SNMPCredentials) gosnmp.SnmpV3MsgFlags {
	hasAuth := c.AuthProtocol != ""
	hasPriv := c.PrivacyProtocol != ""
	switch {
	case hasAuth && hasPriv:
		return gosnmp.AuthPriv
	case hasAuth:
		return gosnmp.AuthNoPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func authProtocol(name string) gosnmp.SnmpV3AuthProtocol {
	switch name {
	case "SHA":
		return gosnmp.SHA
	case "MD5":
		return gosnmp.MD5
	default:
		return gosnmp.NoAuth
	}
}

func privacyProtocol(name string) gosnmp.SnmpV3PrivProtocol {
	switch name {
	case "AES":
		return gosnmp.AES
	case "DES":
		return gosnmp.DES
	default:
		return gosnmp.NoPriv
	}
}
