package proxygroup

import (
	"time"

	"github.com/cuemby/discoverer/pkg/types"
)

// GetProxySyncData implements spec.md §4.6's GET_PROXY_SYNC_DATA: NONE if
// the proxy is unknown or ungrouped, FULL if the client's revision is 0,
// ahead of the server's (a server restart reset the counter), or if the
// proxy's last recorded sync was 24h or more ago, PARTIAL otherwise with
// the host deletions recorded against this proxy since the client's
// revision. A proxy with no recorded sync is not treated as stale.
func (c *Cache) GetProxySyncData(proxyID string, clientHostmapRevision int64, now time.Time) (mode types.SyncMode, revision int64, failoverDelay time.Duration, deletedHostIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	proxy, ok := c.proxies[proxyID]
	if !ok || proxy.Group == "" {
		return types.SyncModeNone, 0, 0, nil
	}
	group, ok := c.groups[proxy.Group]
	if !ok {
		return types.SyncModeNone, 0, 0, nil
	}

	wasStale := !proxy.SyncTime.IsZero() && now.Sub(proxy.SyncTime) >= 24*time.Hour
	proxy.SyncTime = now

	if clientHostmapRevision == 0 || clientHostmapRevision > group.HostmapRevision || wasStale {
		return types.SyncModeFull, group.HostmapRevision, group.FailoverDelay, nil
	}

	for _, d := range proxy.DeletedGroupHosts {
		if d.Revision > clientHostmapRevision {
			deletedHostIDs = append(deletedHostIDs, d.HostID)
		}
	}
	return types.SyncModePartial, group.HostmapRevision, group.FailoverDelay, deletedHostIDs
}

// GetProxyGroupStats implements spec.md §4.6's GET_PROXY_GROUP_STATS.
func (c *Cache) GetProxyGroupStats(name string) (state types.ProxyGroupState, onlineCount int, proxyIDs []string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, g := range c.groups {
		if g.Name != name {
			continue
		}
		for _, id := range g.Proxies {
			if p, exists := c.proxies[id]; exists && p.State == types.ProxyStateOnline {
				onlineCount++
			}
		}
		return g.State, onlineCount, append([]string(nil), g.Proxies...), true
	}
	return 0, 0, nil, false
}

// GetHostRedirect implements spec.md §4.6's GET_HOST_REDIRECT: if hostname
// resolves to a binding, and localProxyID is either not the binding's
// current proxy or is failing over (stale heartbeat and stale reset, both
// older than the group's failover_delay), returns the target proxy's
// address. local_port macro in the target address, if any, is resolved
// on demand via the cache's UserMacroResolver.
func (c *Cache) GetHostRedirect(hostname, localProxyID string, now time.Time) (address string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hostID, ok := c.byHostName[hostname]
	if !ok {
		return "", false
	}
	binding, ok := c.bindings[hostID]
	if !ok {
		return "", false
	}

	target, ok := c.proxies[binding.ProxyID]
	if !ok {
		return "", false
	}

	if binding.ProxyID == localProxyID {
		if !c.isFailingOverLocked(binding, target, now) {
			return "", false
		}
		// First redirect decision during a fail-over window stamps
		// LastReset so a repeat query within failover_delay is
		// suppressed instead of re-triggering (spec.md §8 scenario 6).
		binding.LastReset = now
	}

	addr := target.LocalAddress
	if c.macros != nil {
		if resolved, err := c.macros.ResolveMacro(target.ProxyID, addr); err == nil {
			addr = resolved
		}
	}
	return addr, true
}

func (c *Cache) isFailingOverLocked(binding *types.HostProxyBinding, proxy *types.Proxy, now time.Time) bool {
	delay := defaultFailoverDelay
	if group, ok := c.groups[proxy.Group]; ok && group.FailoverDelay > 0 {
		delay = group.FailoverDelay
	}
	staleHeartbeat := now.Sub(proxy.LastAccess) > delay
	staleReset := now.Sub(binding.LastReset) > delay
	return staleHeartbeat && staleReset
}
