package ipc

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/discoverer/pkg/queue"
	"github.com/cuemby/discoverer/pkg/worker"
)

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("unix", path, time.Second)
	require.NoError(t, err)
	return conn
}

func TestDiscovererServiceQueueReportsPendingChecks(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "discoverer.sock")
	q := queue.New()
	q.ReserveCapacity(42)
	pool := worker.NewPool()

	svc, err := NewDiscovererService(sockPath, q, pool)
	require.NoError(t, err)
	defer svc.Close()

	done := make(chan bool, 1)
	go func() { done <- svc.Serve(time.Second) }()

	conn := dial(t, sockPath)
	defer conn.Close()
	require.NoError(t, writeFrame(conn, CodeQueue, nil))

	code, payload, err := readFrame(conn)
	require.NoError(t, err)
	assert.Equal(t, CodeQueue, code)

	d := newDecoder(payload)
	assert.Equal(t, uint64(42), d.u64())
	require.NoError(t, d.done())

	assert.False(t, <-done)
}

func TestDiscovererServiceUsageStatsReportsBusyFractions(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "discoverer.sock")
	q := queue.New()
	pool := worker.NewPool()
	tk1, tk2 := worker.NewTimeKeeper(), worker.NewTimeKeeper()
	pool.Register("w1", tk1)
	pool.Register("w2", tk2)

	svc, err := NewDiscovererService(sockPath, q, pool)
	require.NoError(t, err)
	defer svc.Close()

	go svc.Serve(time.Second)

	conn := dial(t, sockPath)
	defer conn.Close()
	require.NoError(t, writeFrame(conn, CodeUsageStats, nil))

	code, payload, err := readFrame(conn)
	require.NoError(t, err)
	assert.Equal(t, CodeUsageStats, code)

	d := newDecoder(payload)
	n := d.u16()
	require.Equal(t, uint16(2), n)
	for i := 0; i < int(n); i++ {
		d.f64()
	}
	require.NoError(t, d.done())
}

func TestDiscovererServiceShutdownReturnsTrue(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "discoverer.sock")
	q := queue.New()
	pool := worker.NewPool()
	svc, err := NewDiscovererService(sockPath, q, pool)
	require.NoError(t, err)
	defer svc.Close()

	done := make(chan bool, 1)
	go func() { done <- svc.Serve(5 * time.Second) }()

	conn := dial(t, sockPath)
	require.NoError(t, writeFrame(conn, CodeShutdown, nil))
	conn.Close()

	assert.True(t, <-done)
}

func TestDiscovererServiceTimesOutWithNoConnections(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "discoverer.sock")
	q := queue.New()
	pool := worker.NewPool()
	svc, err := NewDiscovererService(sockPath, q, pool)
	require.NoError(t, err)
	defer svc.Close()

	start := time.Now()
	shutdown := svc.Serve(50 * time.Millisecond)
	assert.False(t, shutdown)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}
