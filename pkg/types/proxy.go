package types

import "time"

// ProxyState is a Proxy's liveness as tracked by the manager (spec.md §3).
type ProxyState string

const (
	ProxyStateOnline  ProxyState = "ONLINE"
	ProxyStateOffline ProxyState = "OFFLINE"
)

// Proxy is a remote probe executor that may be assigned a subset of a
// ProxyGroup's hosts (spec.md §3).
type Proxy struct {
	ProxyID           string
	Name              string
	Group             string // proxy_groupid, "" if ungrouped
	LastAccess        time.Time
	DeletedGroupHosts []HostDeletion
	SyncTime          time.Time
	State             ProxyState
	LocalAddress      string // address:port (port may still contain a macro)
}

// HostDeletion records a host leaving this proxy's assignment at a given
// revision, so GET_PROXY_SYNC_DATA's PARTIAL mode can report only the
// deletions newer than the client's last-known revision (spec.md §4.6).
type HostDeletion struct {
	HostID   string
	Revision int64
}

// ProxyGroup holds the failover policy and live membership for a set of
// proxies (spec.md §3).
type ProxyGroup struct {
	ProxyGroupID     string
	Name             string
	FailoverDelay    time.Duration
	MinOnline        int
	Proxies          []string // proxy ids, ordered
	HostIDs          []string // hosts currently owned by this group
	NewHostIDs       []string // pending additions, applied by CacheUpdateGroups
	HostmapRevision  int64
	Revision         int64
	Flags            uint32
	State            ProxyGroupState
}

// ProxyGroupState mirrors GET_STATS's state field (spec.md §6).
type ProxyGroupState int32

const (
	ProxyGroupStateOffline ProxyGroupState = 0
	ProxyGroupStateOnline  ProxyGroupState = 1
	ProxyGroupStateDegraded ProxyGroupState = 2
)

// HostProxyBinding is the authoritative host-to-proxy mapping used by
// redirect queries (spec.md §3).
type HostProxyBinding struct {
	HostName  string
	HostID    string
	ProxyID   string
	Revision  int64
	LastReset time.Time // guards repeated redirect-reset responses (spec.md §8 scenario 6)
}

// SyncMode is GET_PROXY_SYNC_DATA's reply discriminator (spec.md §4.6, §6).
type SyncMode int8

const (
	SyncModeNone    SyncMode = 0
	SyncModeFull    SyncMode = 1
	SyncModePartial SyncMode = 2
)

// Relocation is a (hostid, src_groupid, dst_groupid) tuple describing a
// host's group-membership change, produced by FetchProxies's incremental
// diff and consumed by HOST_PGROUP_UPDATE (spec.md §4.6).
type Relocation struct {
	HostID       string
	SrcGroupID   string
	DstGroupID   string
}
