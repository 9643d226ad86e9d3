// Package ipc implements the discoverer's two external IPC services
// (spec.md §4.7, §6): the Discoverer endpoint (QUEUE, USAGE_STATS,
// SNMP_CACHE_RELOAD, SHUTDOWN) and the ProxyGroupManager endpoint
// (HOST_PGROUP_UPDATE, GET_PROXY_SYNC_DATA, GET_STATS, PROXY_LASTACCESS,
// STOP), both over length-prefixed framed messages on a Unix domain
// socket, byte-for-byte per §6 and §9's explicit "keep on the wire" note.
//
// The wire format: every frame is a u32 little-endian length (covering the
// one-byte message code plus its payload), the code byte, then the
// payload. Integers are little-endian; strings are u32-length-prefixed
// byte counts except where §6 calls out a zero-terminated C string
// (GET_STATS's request payload) instead.
package ipc
