package proxygroup

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/discoverer/pkg/config"
	"github.com/cuemby/discoverer/pkg/events"
	"github.com/cuemby/discoverer/pkg/log"
	"github.com/cuemby/discoverer/pkg/types"
)

// defaultFailoverDelay is substituted for any proxy group row whose
// failover_delay failed to validate (spec.md §4.6 "invalid failover_delay
// defaults to 60s with a warning").
const defaultFailoverDelay = 60 * time.Second

// Cache is the concurrent proxy/group/binding map spec.md §4.6 describes.
// Every exported method takes its own lock; callers never need to
// coordinate locking externally.
type Cache struct {
	mu sync.RWMutex

	proxies    map[string]*types.Proxy
	groups     map[string]*types.ProxyGroup
	bindings   map[string]*types.HostProxyBinding // hostID -> binding
	byHostName map[string]string                  // hostname -> hostID

	groupsRevision  int64
	proxiesRevision int64

	macros config.UserMacroResolver
	events *events.Broker
	logger zerolog.Logger
}

// New constructs an empty Cache. macros and evt may both be nil: macros
// disables on-demand local_port macro resolution in GetHostRedirect, evt
// disables hostmap-delta publication.
func New(macros config.UserMacroResolver, evt *events.Broker) *Cache {
	return &Cache{
		proxies:    make(map[string]*types.Proxy),
		groups:     make(map[string]*types.ProxyGroup),
		bindings:   make(map[string]*types.HostProxyBinding),
		byHostName: make(map[string]string),
		macros:     macros,
		events:     evt,
		logger:     log.WithComponent("proxygroup"),
	}
}

// SyncProxyGroup replaces the group table with rows, upserting rows
// present and deleting groups no longer named (spec.md §4.6). rev is
// recorded so FetchGroups callers know whether their snapshot is stale.
func (c *Cache) SyncProxyGroup(rows []types.ProxyGroup, rev int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool, len(rows))
	for i := range rows {
		row := rows[i]
		seen[row.ProxyGroupID] = true

		if row.FailoverDelay <= 0 {
			c.logger.Warn().Str("proxy_groupid", row.ProxyGroupID).
				Dur("failover_delay", row.FailoverDelay).
				Msg("invalid failover_delay, defaulting to 60s")
			row.FailoverDelay = defaultFailoverDelay
		}

		if existing, ok := c.groups[row.ProxyGroupID]; ok {
			row.HostIDs = existing.HostIDs
			row.NewHostIDs = existing.NewHostIDs
			row.HostmapRevision = existing.HostmapRevision
		}
		g := row
		c.groups[row.ProxyGroupID] = &g
	}

	for id := range c.groups {
		if !seen[id] {
			delete(c.groups, id)
		}
	}

	c.groupsRevision = rev
}

// SyncHostProxy replaces the proxy-group-binding rows. When a binding's
// proxy assignment changes, the host's old name is deregistered from the
// secondary index and the new one registered, and its LastReset is
// cleared so the failover-reset guard starts fresh (spec.md §4.6
// "resetting any affected host's interface availability flag").
func (c *Cache) SyncHostProxy(rows []types.HostProxyBinding, rev int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool, len(rows))
	for i := range rows {
		row := rows[i]
		seen[row.HostID] = true

		if existing, ok := c.bindings[row.HostID]; ok {
			if existing.HostName != row.HostName {
				delete(c.byHostName, existing.HostName)
			}
			if existing.ProxyID != row.ProxyID {
				row.LastReset = time.Time{}
			} else {
				row.LastReset = existing.LastReset
			}
		}

		b := row
		c.bindings[row.HostID] = &b
		c.byHostName[row.HostName] = row.HostID
	}

	for hostID, b := range c.bindings {
		if !seen[hostID] {
			delete(c.byHostName, b.HostName)
			delete(c.bindings, hostID)
		}
	}

	c.proxiesRevision = rev
}

// SyncProxies upserts/deletes the proxy table itself. spec.md §4.6 names
// sync_proxy_group/sync_host_proxy explicitly; proxy row sync is the
// same pattern applied to the Proxy table, supplemented here since the
// group/binding tables are meaningless without the proxies they
// reference.
func (c *Cache) SyncProxies(rows []types.Proxy) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool, len(rows))
	for i := range rows {
		row := rows[i]
		seen[row.ProxyID] = true
		if existing, ok := c.proxies[row.ProxyID]; ok {
			row.DeletedGroupHosts = existing.DeletedGroupHosts
			row.SyncTime = existing.SyncTime
		}
		p := row
		c.proxies[row.ProxyID] = &p
	}
	for id := range c.proxies {
		if !seen[id] {
			delete(c.proxies, id)
		}
	}
}

// FetchGroups incrementally diffs the authoritative group table into a
// caller-owned local snapshot: a no-op if local is already current.
func (c *Cache) FetchGroups(local map[string]types.ProxyGroup, localRev *int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if *localRev >= c.groupsRevision {
		return
	}
	for id := range local {
		if _, ok := c.groups[id]; !ok {
			delete(local, id)
		}
	}
	for id, g := range c.groups {
		local[id] = *g
	}
	*localRev = c.groupsRevision
}

// FetchProxies incrementally diffs the authoritative proxy table into a
// caller-owned local snapshot, reporting a Relocation for every host
// whose group membership changed since the snapshot's revision
// (spec.md §4.6 "reloc_out receives tuples for hosts whose group
// membership changed").
func (c *Cache) FetchProxies(local map[string]types.Proxy, localHostGroup map[string]string, localRev *int64) []types.Relocation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if *localRev >= c.proxiesRevision {
		return nil
	}

	for id := range local {
		if _, ok := c.proxies[id]; !ok {
			delete(local, id)
		}
	}
	for id, p := range c.proxies {
		local[id] = *p
	}

	var relocations []types.Relocation
	currentHostGroup := make(map[string]string, len(c.bindings))
	for hostID, b := range c.bindings {
		proxy, ok := c.proxies[b.ProxyID]
		group := ""
		if ok {
			group = proxy.Group
		}
		currentHostGroup[hostID] = group
	}

	for hostID, newGroup := range currentHostGroup {
		if oldGroup, ok := localHostGroup[hostID]; !ok || oldGroup != newGroup {
			relocations = append(relocations, types.Relocation{HostID: hostID, SrcGroupID: localHostGroup[hostID], DstGroupID: newGroup})
		}
	}
	for hostID, oldGroup := range localHostGroup {
		if _, ok := currentHostGroup[hostID]; !ok {
			relocations = append(relocations, types.Relocation{HostID: hostID, SrcGroupID: oldGroup, DstGroupID: ""})
			delete(localHostGroup, hostID)
		}
	}
	for hostID, g := range currentHostGroup {
		localHostGroup[hostID] = g
	}

	*localRev = c.proxiesRevision
	return relocations
}

// UpdateProxyLastaccess records a proxy heartbeat (spec.md §4.6). A
// non-increasing ts (a replayed or out-of-order heartbeat) leaves the
// cache unchanged, per spec.md §8's idempotence property.
func (c *Cache) UpdateProxyLastaccess(proxyID string, ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.proxies[proxyID]
	if !ok || !ts.After(p.LastAccess) {
		return
	}
	p.LastAccess = ts
	p.State = types.ProxyStateOnline
}
