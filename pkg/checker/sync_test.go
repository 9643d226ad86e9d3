package checker

import (
	"context"
	"net"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/discoverer/pkg/types"
)

type fakeDNS struct{ name string }

func (f fakeDNS) ResolveAddr(ip string) (string, error) { return f.name, nil }

func mustPorts(t *testing.T, s string) types.PortRange {
	t.Helper()
	pr, err := types.ParsePortRange(s)
	require.NoError(t, err)
	return pr
}

func mustIPs(t *testing.T, s string) types.IPRangeSpec {
	t.Helper()
	spec, err := types.ParseIPRange(s)
	require.NoError(t, err)
	return spec
}

func TestSyncCheckerTCPUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	task := &types.Task{
		IPRange: mustIPs(t, "127.0.0.1"),
		Checks: []types.Check{
			{Type: types.CheckTypeTCP, Ports: mustPorts(t, portStr), Timeout: 2 * time.Second},
		},
	}
	_ = port

	c := NewSyncChecker(Deps{DNS: fakeDNS{name: "host.example"}})
	out := c.DispatchBatch(context.Background(), task)
	require.NoError(t, out.Err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "127.0.0.1", out.Results[0].IP)
	assert.Equal(t, "host.example", out.Results[0].DNSName)
	require.Len(t, out.Results[0].Services, 1)
	assert.Equal(t, types.ServiceStatusUp, out.Results[0].Services[0].Status)
}

func TestSyncCheckerTCPClosedPortIsOmitted(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close() // nothing listens now

	_, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	task := &types.Task{
		IPRange: mustIPs(t, "127.0.0.1"),
		Checks: []types.Check{
			{Type: types.CheckTypeTCP, Ports: mustPorts(t, portStr), Timeout: 200 * time.Millisecond},
		},
	}

	c := NewSyncChecker(Deps{})
	out := c.DispatchBatch(context.Background(), task)
	require.NoError(t, out.Err)
	require.Len(t, out.Results, 1)
	assert.Empty(t, out.Results[0].Services)
	assert.Equal(t, 1, out.Results[0].ProcessedChecksPerIP)
}

func TestSyncCheckerHTTP(t *testing.T) {
	srv := httptest.NewServer(nil)
	defer srv.Close()

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)

	task := &types.Task{
		IPRange: mustIPs(t, host),
		Checks: []types.Check{
			{Type: types.CheckTypeHTTP, Ports: mustPorts(t, portStr), Timeout: 2 * time.Second},
		},
	}

	c := NewSyncChecker(Deps{})
	out := c.DispatchBatch(context.Background(), task)
	require.NoError(t, out.Err)
	require.Len(t, out.Results, 1)
	require.Len(t, out.Results[0].Services, 1)
	assert.Equal(t, types.ServiceStatusUp, out.Results[0].Services[0].Status)
}

func TestSyncCheckerExpectedChecksPerIP(t *testing.T) {
	task := &types.Task{
		Checks: []types.Check{
			{Ports: mustPorts(t, "22,80,443")},
			{Ports: mustPorts(t, "8000-8002")},
		},
	}
	c := NewSyncChecker(Deps{})
	assert.Equal(t, 6, c.ExpectedChecksPerIP(task))
}

func TestSyncCheckerContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewSyncChecker(Deps{})
	out := c.DispatchBatch(ctx, &types.Task{IPRange: mustIPs(t, "127.0.0.1")})
	assert.Error(t, out.Err)
}
