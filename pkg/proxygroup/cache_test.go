package proxygroup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/discoverer/pkg/types"
)

func TestSyncProxyGroupDefaultsInvalidFailoverDelay(t *testing.T) {
	c := New(nil, nil)
	c.SyncProxyGroup([]types.ProxyGroup{{ProxyGroupID: "g1", Name: "g1", FailoverDelay: -1}}, 1)

	local := map[string]types.ProxyGroup{}
	var rev int64
	c.FetchGroups(local, &rev)
	require.Contains(t, local, "g1")
	assert.Equal(t, defaultFailoverDelay, local["g1"].FailoverDelay)
}

func TestUpdateHostPGroupAndCacheUpdateGroupsAssignsOnlineProxy(t *testing.T) {
	c := New(nil, nil)
	c.SyncProxies([]types.Proxy{
		{ProxyID: "p1", Name: "p1", Group: "g1", State: types.ProxyStateOnline},
		{ProxyID: "p2", Name: "p2", Group: "g1", State: types.ProxyStateOffline},
	})
	c.SyncProxyGroup([]types.ProxyGroup{{ProxyGroupID: "g1", Name: "g1", FailoverDelay: time.Minute, Proxies: []string{"p1", "p2"}}}, 1)

	c.UpdateHostPGroup([]types.Relocation{{HostID: "h1", DstGroupID: "g1"}})
	c.CacheUpdateGroups(time.Now())

	mode, rev, delay, _ := c.GetProxySyncData("p1", 0, time.Now())
	assert.Equal(t, types.SyncModeFull, mode)
	assert.Equal(t, int64(1), rev)
	assert.Equal(t, time.Minute, delay)

	addr, ok := c.GetHostRedirect("h1-does-not-resolve", "p2", time.Now())
	assert.False(t, ok)
	assert.Empty(t, addr)
}

func TestCacheUpdateGroupsRecordsDeletionOnReassignment(t *testing.T) {
	c := New(nil, nil)
	c.SyncProxies([]types.Proxy{
		{ProxyID: "p1", Name: "p1", Group: "g1", State: types.ProxyStateOnline},
	})
	c.SyncProxyGroup([]types.ProxyGroup{{ProxyGroupID: "g1", Name: "g1", FailoverDelay: time.Minute, Proxies: []string{"p1"}}}, 1)

	c.UpdateHostPGroup([]types.Relocation{{HostID: "h1", DstGroupID: "g1"}})
	c.CacheUpdateGroups(time.Now())

	// Now reassign h1 onto a second online proxy.
	c.SyncProxies([]types.Proxy{
		{ProxyID: "p1", Name: "p1", Group: "g1", State: types.ProxyStateOnline},
		{ProxyID: "p2", Name: "p2", Group: "g1", State: types.ProxyStateOnline},
	})
	c.SyncProxyGroup([]types.ProxyGroup{{ProxyGroupID: "g1", Name: "g1", FailoverDelay: time.Minute, Proxies: []string{"p2"}}}, 2)
	c.UpdateHostPGroup([]types.Relocation{{HostID: "h1", SrcGroupID: "g1", DstGroupID: "g1"}})
	c.CacheUpdateGroups(time.Now())

	_, rev, _, deletions := c.GetProxySyncData("p1", 1, time.Now())
	assert.Equal(t, int64(2), rev)
	assert.Contains(t, deletions, "h1")
}

func TestGetHostRedirectReturnsTargetWhenLocalProxyDiffers(t *testing.T) {
	c := New(nil, nil)
	c.SyncProxies([]types.Proxy{
		{ProxyID: "p1", Name: "p1", Group: "g1", State: types.ProxyStateOnline, LocalAddress: "10.0.0.1:9000"},
	})
	c.SyncProxyGroup([]types.ProxyGroup{{ProxyGroupID: "g1", Name: "g1", FailoverDelay: time.Minute, Proxies: []string{"p1"}}}, 1)
	c.SyncHostProxy([]types.HostProxyBinding{{HostName: "host1", HostID: "h1", ProxyID: "p1", Revision: 1}}, 1)

	addr, ok := c.GetHostRedirect("host1", "other-proxy", time.Now())
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1:9000", addr)
}

func TestGetHostRedirectNoneWhenLocalProxyIsCurrentAndHealthy(t *testing.T) {
	c := New(nil, nil)
	now := time.Now()
	c.SyncProxies([]types.Proxy{
		{ProxyID: "p1", Name: "p1", Group: "g1", State: types.ProxyStateOnline, LocalAddress: "10.0.0.1:9000", LastAccess: now},
	})
	c.SyncProxyGroup([]types.ProxyGroup{{ProxyGroupID: "g1", Name: "g1", FailoverDelay: time.Minute, Proxies: []string{"p1"}}}, 1)
	c.SyncHostProxy([]types.HostProxyBinding{{HostName: "host1", HostID: "h1", ProxyID: "p1", Revision: 1, LastReset: now}}, 1)

	_, ok := c.GetHostRedirect("host1", "p1", now)
	assert.False(t, ok)
}

func TestGetHostRedirectDuringFailoverSuppressesRepeatWithinDelay(t *testing.T) {
	c := New(nil, nil)
	now := time.Now()
	c.SyncProxies([]types.Proxy{
		{ProxyID: "p1", Name: "p1", Group: "g1", State: types.ProxyStateOnline, LocalAddress: "10.0.0.1:9000", LastAccess: now.Add(-120 * time.Second)},
	})
	c.SyncProxyGroup([]types.ProxyGroup{{ProxyGroupID: "g1", Name: "g1", FailoverDelay: 60 * time.Second, Proxies: []string{"p1"}}}, 1)
	c.SyncHostProxy([]types.HostProxyBinding{{HostName: "host1", HostID: "h1", ProxyID: "p1", Revision: 1}}, 1)

	addr, ok := c.GetHostRedirect("host1", "p1", now)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1:9000", addr)

	_, ok = c.GetHostRedirect("host1", "p1", now.Add(10*time.Second))
	assert.False(t, ok)
}

func TestUpdateProxyLastaccessIgnoresNonIncreasingTimestamp(t *testing.T) {
	c := New(nil, nil)
	now := time.Now()
	c.SyncProxies([]types.Proxy{
		{ProxyID: "p1", Name: "p1", Group: "g1", State: types.ProxyStateOnline, LocalAddress: "10.0.0.1:9000", LastAccess: now},
	})
	c.SyncProxyGroup([]types.ProxyGroup{{ProxyGroupID: "g1", Name: "g1", FailoverDelay: 60 * time.Second, Proxies: []string{"p1"}}}, 1)
	c.SyncHostProxy([]types.HostProxyBinding{{HostName: "host1", HostID: "h1", ProxyID: "p1", Revision: 1}}, 1)

	// A replayed heartbeat bearing an older timestamp than what's already
	// recorded must leave the cache unchanged (spec.md §8 idempotence): it
	// must not push LastAccess backward and make the proxy look stale.
	c.UpdateProxyLastaccess("p1", now.Add(-1000*time.Second))

	_, ok := c.GetHostRedirect("host1", "p1", now)
	assert.False(t, ok, "an out-of-order heartbeat must not rewind LastAccess and trigger a spurious fail-over redirect")
}

func TestGetProxyGroupStatsCountsOnlineProxies(t *testing.T) {
	c := New(nil, nil)
	c.SyncProxies([]types.Proxy{
		{ProxyID: "p1", Name: "p1", Group: "g1", State: types.ProxyStateOnline},
		{ProxyID: "p2", Name: "p2", Group: "g1", State: types.ProxyStateOffline},
	})
	c.SyncProxyGroup([]types.ProxyGroup{{ProxyGroupID: "g1", Name: "g1", FailoverDelay: time.Minute, Proxies: []string{"p1", "p2"}, State: types.ProxyGroupStateDegraded}}, 1)

	state, online, ids, ok := c.GetProxyGroupStats("g1")
	require.True(t, ok)
	assert.Equal(t, types.ProxyGroupStateDegraded, state)
	assert.Equal(t, 1, online)
	assert.ElementsMatch(t, []string{"p1", "p2"}, ids)
}
