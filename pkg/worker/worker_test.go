package worker

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/discoverer/pkg/checker"
	"github.com/cuemby/discoverer/pkg/queue"
	"github.com/cuemby/discoverer/pkg/resultstore"
	"github.com/cuemby/discoverer/pkg/types"
)

func mustIPs(t *testing.T, s string) types.IPRangeSpec {
	t.Helper()
	spec, err := types.ParseIPRange(s)
	require.NoError(t, err)
	return spec
}

func mustPorts(t *testing.T, s string) types.PortRange {
	t.Helper()
	pr, err := types.ParsePortRange(s)
	require.NoError(t, err)
	return pr
}

func tcpJob(t *testing.T, druleid, ipRange string) (*types.Job, *net.TCPListener) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	tcpLn := ln.(*net.TCPListener)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	ranges := mustIPs(t, ipRange)
	checks := []types.Check{{DCheckID: "c1", Type: types.CheckTypeTCP, Ports: mustPorts(t, strconv.Itoa(tcpLn.Addr().(*net.TCPAddr).Port))}}
	task := &types.Task{
		Kind:       types.TaskKindSync,
		IPRange:    ranges,
		Checks:     checks,
		CheckCount: ranges.Count() * checks[0].Ports.Count(),
	}
	job := &types.Job{
		DRuleID: druleid,
		Tasks:   []*types.Task{task},
		Status:  types.JobStatusQueued,
	}
	return job, tcpLn
}

func TestWorkerDispatchesSingleIPTCPCheck(t *testing.T) {
	job, ln := tcpJob(t, "r1", "127.0.0.1")
	defer ln.Close()

	q := queue.New()
	store := resultstore.New()
	store.Reserve(job.DRuleID, "127.0.0.1", job.Tasks[0].CheckCount)
	q.Push(job)

	w := New(Config{ID: "w1", Queue: q, Store: store, CheckerDeps: checker.Deps{}})

	popped := q.Pop()
	require.NotNil(t, popped)
	w.handleJob(popped)

	flush, _ := store.TakeCompleted([]string{job.DRuleID}, 10)
	require.Len(t, flush, 1)
	assert.Equal(t, "127.0.0.1", flush[0].IP)
	require.Len(t, flush[0].Services, 1)
	assert.Equal(t, types.ServiceStatusUp, flush[0].Services[0].Status)
}

func TestWorkerRegistersEmptyMarkerWhenJobHasNoTasks(t *testing.T) {
	q := queue.New()
	store := resultstore.New()
	job := &types.Job{DRuleID: "r2", Status: types.JobStatusQueued}
	q.Push(job)

	w := New(Config{ID: "w1", Queue: q, Store: store})
	popped := q.Pop()
	require.NotNil(t, popped)
	w.handleJob(popped)

	flush, _ := store.TakeCompleted([]string{"r2"}, 10)
	require.Len(t, flush, 1)
	assert.Equal(t, "", flush[0].IP)

	_, ok := q.Job("r2")
	assert.False(t, ok, "job should be dropped from job_refs once empty")
}

func TestWorkerAbortsJobOnBatchError(t *testing.T) {
	q := queue.New()
	store := resultstore.New()

	// A single-IP TCP task gives the job one outstanding task for the
	// abort to free. A failed connect is only a check-level failure
	// (spec.md §7 kind 1), so the batch-abort path is driven directly.
	task := &types.Task{
		Kind:       types.TaskKindSync,
		IPRange:    mustIPs(t, "127.0.0.1"),
		Checks:     []types.Check{{Type: types.CheckTypeTCP, Ports: mustPorts(t, "1")}},
		CheckCount: 1,
	}
	job := &types.Job{DRuleID: "r3", Tasks: []*types.Task{task}, Status: types.JobStatusQueued}
	q.Push(job)

	w := New(Config{ID: "w1", Queue: q, Store: store})
	// Call abort() as dispatch does when a batch returns an error.
	w.abort(job, assertErr{})

	errs := q.DrainErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, "r3", errs[0].DRuleID)

	flush, _ := store.TakeCompleted([]string{"r3"}, 10)
	require.Len(t, flush, 1)
	assert.Equal(t, "", flush[0].IP)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestTimeKeeperPoolSamplesBusyFraction(t *testing.T) {
	pool := NewPool()
	tk := NewTimeKeeper()
	pool.Register("w1", tk)

	tk.RecordBusy(50 * time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	frac := tk.Sample()
	assert.Greater(t, frac, 0.0)
	assert.LessOrEqual(t, frac, 1.0)

	assert.Equal(t, 1, pool.Count())
}
