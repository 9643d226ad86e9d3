package ipc

import (
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/discoverer/pkg/log"
	"github.com/cuemby/discoverer/pkg/metrics"
	"github.com/cuemby/discoverer/pkg/queue"
	"github.com/cuemby/discoverer/pkg/worker"
)

// Discoverer message codes (spec.md §6, first table).
const (
	CodeQueue           byte = 1
	CodeUsageStats      byte = 2
	CodeSNMPCacheReload byte = 3
	CodeShutdown        byte = 4
)

// DiscovererService answers QUEUE, USAGE_STATS, SNMP_CACHE_RELOAD, and
// SHUTDOWN over a Unix domain socket (spec.md §4.7, §6). Its Serve method
// is the scheduler.IPCServer seam: spec.md §4.5 step 7 serves this
// endpoint during the scheduler's own sleep window rather than running a
// dedicated thread for it.
type DiscovererService struct {
	ln   *net.UnixListener
	path string

	queue *queue.Queue
	pool  *worker.Pool

	// OnSNMPCacheReload, if set, runs synchronously when a
	// SNMP_CACHE_RELOAD notification arrives. The SNMP session cache
	// itself lives in the external SNMP engine, out of scope per spec.md
	// §1; this is the seam a real deployment wires a reload into.
	OnSNMPCacheReload func()

	logger zerolog.Logger
}

// NewDiscovererService binds a Unix listener at path. The caller must
// ensure path's parent directory exists and that no stale socket file is
// left behind from a prior run.
func NewDiscovererService(path string, q *queue.Queue, pool *worker.Pool) (*DiscovererService, error) {
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, err
	}
	return &DiscovererService{
		ln:     ln,
		path:   path,
		queue:  q,
		pool:   pool,
		logger: log.WithComponent("ipc.discoverer"),
	}, nil
}

// Close releases the listener and removes the socket file.
func (s *DiscovererService) Close() error {
	err := s.ln.Close()
	os.Remove(s.path)
	return err
}

// Serve implements scheduler.IPCServer: it accepts and handles connections
// until timeout elapses or a SHUTDOWN notification is received, in which
// case it returns true so the scheduler's run loop exits.
func (s *DiscovererService) Serve(timeout time.Duration) (shutdown bool) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		if err := s.ln.SetDeadline(deadline); err != nil {
			s.logger.Error().Err(err).Msg("failed to set accept deadline")
			return false
		}
		conn, err := s.ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return false
			}
			s.logger.Debug().Err(err).Msg("accept failed")
			return false
		}

		stop := s.handleConn(conn)
		if stop {
			return true
		}
	}
}

func (s *DiscovererService) handleConn(conn net.Conn) (shutdown bool) {
	defer conn.Close()

	code, payload, err := readFrame(conn)
	if err != nil {
		s.logger.Debug().Err(err).Msg("failed to read request frame")
		return false
	}
	_ = payload

	switch code {
	case CodeQueue:
		metrics.IPCRequestsTotal.WithLabelValues("QUEUE").Inc()
		e := &encoder{}
		e.u64(uint64(s.queue.PendingChecksCount()))
		s.reply(conn, CodeQueue, e.bytes())

	case CodeUsageStats:
		metrics.IPCRequestsTotal.WithLabelValues("USAGE_STATS").Inc()
		fractions := s.pool.Fractions()
		e := &encoder{}
		e.u16(uint16(len(fractions)))
		for _, f := range fractions {
			e.f64(f)
		}
		s.reply(conn, CodeUsageStats, e.bytes())

	case CodeSNMPCacheReload:
		metrics.IPCRequestsTotal.WithLabelValues("SNMP_CACHE_RELOAD").Inc()
		if s.OnSNMPCacheReload != nil {
			s.OnSNMPCacheReload()
		}

	case CodeShutdown:
		metrics.IPCRequestsTotal.WithLabelValues("SHUTDOWN").Inc()
		return true

	default:
		s.logger.Warn().Uint8("code", code).Msg("unknown discoverer ipc code")
	}

	return false
}

func (s *DiscovererService) reply(conn net.Conn, code byte, payload []byte) {
	if err := writeFrame(conn, code, payload); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write reply frame")
	}
}
