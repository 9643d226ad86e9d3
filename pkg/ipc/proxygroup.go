package ipc

import (
	"net"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/discoverer/pkg/log"
	"github.com/cuemby/discoverer/pkg/metrics"
	"github.com/cuemby/discoverer/pkg/proxygroup"
	"github.com/cuemby/discoverer/pkg/types"
)

// ProxyGroupManager message codes (spec.md §6, second table). These are a
// distinct numbering space from the Discoverer service's codes: each
// service runs its own socket.
const (
	CodeHostPGroupUpdate byte = 1
	CodeGetProxySyncData byte = 2
	CodeGetStats         byte = 3
	CodeProxyLastaccess  byte = 4
	CodeStop             byte = 5
)

const relocationWireSize = 8 + 8 + 8 // three u64 fields

// ProxyGroupManagerService answers HOST_PGROUP_UPDATE, GET_PROXY_SYNC_DATA,
// GET_STATS, and PROXY_LASTACCESS against a proxygroup.Cache, and exits on
// STOP (spec.md §4.7, §6). Unlike DiscovererService it runs its own
// receiver goroutine (spec.md §5: "one IPC thread per IPC service") rather
// than sharing the scheduler's sleep window.
type ProxyGroupManagerService struct {
	ln    *net.UnixListener
	path  string
	cache *proxygroup.Cache

	logger zerolog.Logger
	doneCh chan struct{}
}

// NewProxyGroupManagerService binds a Unix listener at path.
func NewProxyGroupManagerService(path string, cache *proxygroup.Cache) (*ProxyGroupManagerService, error) {
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, err
	}
	return &ProxyGroupManagerService{
		ln:     ln,
		path:   path,
		cache:  cache,
		logger: log.WithComponent("ipc.proxygroupmanager"),
		doneCh: make(chan struct{}),
	}, nil
}

// Run is the service's receiver loop (spec.md §4.7 "Single receiver thread
// over a named domain socket"). It blocks until Stop is called; run it in
// its own goroutine.
func (s *ProxyGroupManagerService) Run() {
	defer close(s.doneCh)
	defer func() {
		s.ln.Close()
		os.Remove(s.path)
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		if stop := s.handleConn(conn); stop {
			return
		}
	}
}

// Stop implements spec.md §4.7's destroy(): it opens a local client
// connection solely to deliver STOP, then waits for Run to exit.
func (s *ProxyGroupManagerService) Stop() {
	conn, err := net.DialTimeout("unix", s.path, 2*time.Second)
	if err == nil {
		writeFrame(conn, CodeStop, nil)
		conn.Close()
	}
	<-s.doneCh
}

func (s *ProxyGroupManagerService) handleConn(conn net.Conn) (shutdown bool) {
	defer conn.Close()

	code, payload, err := readFrame(conn)
	if err != nil {
		s.logger.Debug().Err(err).Msg("failed to read request frame")
		return false
	}

	switch code {
	case CodeHostPGroupUpdate:
		metrics.IPCRequestsTotal.WithLabelValues("HOST_PGROUP_UPDATE").Inc()
		s.handleHostPGroupUpdate(payload)

	case CodeGetProxySyncData:
		metrics.IPCRequestsTotal.WithLabelValues("GET_PROXY_SYNC_DATA").Inc()
		s.handleGetProxySyncData(conn, payload)

	case CodeGetStats:
		metrics.IPCRequestsTotal.WithLabelValues("GET_STATS").Inc()
		s.handleGetStats(conn, payload)

	case CodeProxyLastaccess:
		metrics.IPCRequestsTotal.WithLabelValues("PROXY_LASTACCESS").Inc()
		s.handleProxyLastaccess(payload)

	case CodeStop:
		metrics.IPCRequestsTotal.WithLabelValues("STOP").Inc()
		return true

	default:
		s.logger.Warn().Uint8("code", code).Msg("unknown proxygroup ipc code")
	}
	return false
}

// handleHostPGroupUpdate implements HOST_PGROUP_UPDATE: a sequence of
// (hostid, srcid, dstid) triples. Applying the batch and rebalancing are
// two distinct Cache operations in spec.md §4.6 (update_host_pgroup, then
// a subsequent cache_update_groups); this handler runs both in sequence,
// matching §8 scenario 5's "IPC receives HOST_PGROUP_UPDATE ... after
// cache_update_groups()" immediate-rebalance behavior.
func (s *ProxyGroupManagerService) handleHostPGroupUpdate(payload []byte) {
	d := newDecoder(payload)
	var batch []types.Relocation
	for len(payload)-d.off >= relocationWireSize {
		hostID := d.u64()
		srcID := d.u64()
		dstID := d.u64()
		if d.done() != nil {
			break
		}
		r := types.Relocation{HostID: strconv.FormatUint(hostID, 10)}
		if srcID != 0 {
			r.SrcGroupID = strconv.FormatUint(srcID, 10)
		}
		if dstID != 0 {
			r.DstGroupID = strconv.FormatUint(dstID, 10)
		}
		batch = append(batch, r)
	}
	if len(batch) == 0 {
		return
	}
	s.cache.UpdateHostPGroup(batch)
	s.cache.CacheUpdateGroups(time.Now())
}

func (s *ProxyGroupManagerService) handleGetProxySyncData(conn net.Conn, payload []byte) {
	d := newDecoder(payload)
	proxyID := d.u64()
	clientRev := d.u64()
	if err := d.done(); err != nil {
		s.logger.Debug().Err(err).Msg("malformed GET_PROXY_SYNC_DATA request")
		return
	}

	mode, rev, failoverDelay, deleted := s.cache.GetProxySyncData(strconv.FormatUint(proxyID, 10), int64(clientRev), time.Now())

	e := &encoder{}
	e.u8(uint8(mode))
	e.u64(uint64(rev))
	e.str(strconv.FormatInt(int64(failoverDelay.Seconds()), 10))
	if mode == types.SyncModePartial {
		e.u32(uint32(len(deleted)))
		for _, hostID := range deleted {
			id, _ := strconv.ParseUint(hostID, 10, 64)
			e.u64(id)
		}
	}
	writeFrame(conn, CodeGetProxySyncData, e.bytes())
}

func (s *ProxyGroupManagerService) handleGetStats(conn net.Conn, payload []byte) {
	d := newDecoder(payload)
	name := d.cstr()
	if err := d.done(); err != nil {
		s.logger.Debug().Err(err).Msg("malformed GET_STATS request")
		return
	}

	state, online, proxyIDs, ok := s.cache.GetProxyGroupStats(name)
	e := &encoder{}
	if !ok {
		e.i32(-1)
		writeFrame(conn, CodeGetStats, e.bytes())
		return
	}
	e.i32(int32(state))
	e.i32(int32(online))
	e.i32(int32(len(proxyIDs)))
	for _, id := range proxyIDs {
		v, _ := strconv.ParseUint(id, 10, 64)
		e.u64(v)
	}
	writeFrame(conn, CodeGetStats, e.bytes())
}

func (s *ProxyGroupManagerService) handleProxyLastaccess(payload []byte) {
	d := newDecoder(payload)
	proxyID := d.u64()
	lastaccess := d.i32()
	if err := d.done(); err != nil {
		s.logger.Debug().Err(err).Msg("malformed PROXY_LASTACCESS notification")
		return
	}
	s.cache.UpdateProxyLastaccess(strconv.FormatUint(proxyID, 10), time.Unix(int64(lastaccess), 0))
}
