/*
Package proxygroup maintains the concurrent map of proxies, proxy groups,
and host-to-proxy bindings the discoverer consults when deciding which
remote proxy owns a given host (spec.md §4.6).

Configuration sync (SyncProxyGroup, SyncHostProxy) is driven by the
configuration cache; IPC-facing queries (UpdateHostPGroup,
CacheUpdateGroups, UpdateProxyLastaccess, GetProxySyncData,
GetProxyGroupStats, GetHostRedirect) are driven by proxy and discoverer
clients. A single RWMutex guards all of it: the Fetch* snapshots and
GetProxyGroupStats take the read lock; sync, rebalance, heartbeat
updates, GetProxySyncData (which stamps SyncTime) and GetHostRedirect
(which stamps LastReset) take the full lock.
*/
package proxygroup
