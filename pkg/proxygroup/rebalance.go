package proxygroup

import (
	"time"

	"github.com/cuemby/discoverer/pkg/events"
	"github.com/cuemby/discoverer/pkg/types"
)

// UpdateHostPGroup applies a batch of group-membership changes (spec.md
// §4.6): for each relocation, hostid is removed from src's hostids (if
// src is named) and queued onto dst's new_hostids (if dst is named). The
// actual proxy assignment is deferred to the next CacheUpdateGroups call.
func (c *Cache) UpdateHostPGroup(batch []types.Relocation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range batch {
		if r.SrcGroupID != "" {
			if src, ok := c.groups[r.SrcGroupID]; ok {
				src.HostIDs = removeString(src.HostIDs, r.HostID)
			}
		}
		if r.DstGroupID != "" {
			if dst, ok := c.groups[r.DstGroupID]; ok {
				if !containsString(dst.NewHostIDs, r.HostID) {
					dst.NewHostIDs = append(dst.NewHostIDs, r.HostID)
				}
			}
		}
	}
}

// CacheUpdateGroups rebalances every group with pending new_hostids: each
// is distributed round-robin across the group's ONLINE proxies,
// hostmap_revision is bumped, and a host that moves off a proxy it used
// to be bound to has a deletion recorded in that proxy's
// deleted_group_hosts for partial delta delivery (spec.md §4.6).
func (c *Cache) CacheUpdateGroups(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, group := range c.groups {
		if len(group.NewHostIDs) == 0 {
			continue
		}

		online := c.onlineProxiesLocked(group)
		if len(online) == 0 {
			// No proxy to assign onto: membership cannot change this
			// round, so hostmap_revision must not advance either (spec.md
			// §8 "hostmap_revision strictly increases iff the membership
			// of at least one group changed"). Leave NewHostIDs pending
			// for the next CacheUpdateGroups call once a proxy comes
			// online.
			continue
		}

		rev := group.HostmapRevision + 1
		changed := false

		assigned := make([]string, 0, len(group.NewHostIDs))
		for i, hostID := range group.NewHostIDs {
			proxyID := online[i%len(online)]

			if old, ok := c.bindings[hostID]; ok && old.ProxyID != proxyID {
				if oldProxy, ok := c.proxies[old.ProxyID]; ok {
					oldProxy.DeletedGroupHosts = append(oldProxy.DeletedGroupHosts, types.HostDeletion{HostID: hostID, Revision: rev})
				}
			}

			binding := c.bindings[hostID]
			if binding == nil || binding.ProxyID != proxyID {
				changed = true
			}
			if binding == nil {
				binding = &types.HostProxyBinding{HostID: hostID}
				c.bindings[hostID] = binding
			}
			binding.ProxyID = proxyID
			binding.Revision = rev
			assigned = append(assigned, hostID)
		}

		if !changed {
			group.NewHostIDs = nil
			continue
		}
		group.HostmapRevision = rev

		group.HostIDs = mergeUnique(group.HostIDs, assigned)
		group.NewHostIDs = nil

		if c.events != nil {
			c.events.Publish(&events.Event{
				Type:      events.EventHostmapUpdated,
				Timestamp: now,
				Message:   group.ProxyGroupID + " hostmap updated",
				Metadata:  map[string]string{"proxy_groupid": group.ProxyGroupID},
			})
		}
	}
}

func (c *Cache) onlineProxiesLocked(group *types.ProxyGroup) []string {
	var online []string
	for _, id := range group.Proxies {
		if p, ok := c.proxies[id]; ok && p.State == types.ProxyStateOnline {
			online = append(online, id)
		}
	}
	return online
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func mergeUnique(base, add []string) []string {
	seen := make(map[string]bool, len(base))
	for _, v := range base {
		seen[v] = true
	}
	for _, v := range add {
		if !seen[v] {
			base = append(base, v)
			seen[v] = true
		}
	}
	return base
}
