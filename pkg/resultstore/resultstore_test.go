package resultstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/discoverer/pkg/checker"
	"github.com/cuemby/discoverer/pkg/types"
)

func TestDecrementMissingKeyReportsNotFound(t *testing.T) {
	s := New()
	remaining, found := s.Decrement("r1", "1.2.3.4", 1)
	assert.False(t, found)
	assert.Equal(t, 0, remaining)
}

func TestReserveThenDecrementToZero(t *testing.T) {
	s := New()
	s.Reserve("r1", "1.2.3.4", 2)

	remaining, found := s.Decrement("r1", "1.2.3.4", 1)
	assert.True(t, found)
	assert.Equal(t, 1, remaining)

	remaining, found = s.Decrement("r1", "1.2.3.4", 1)
	assert.True(t, found)
	assert.Equal(t, 0, remaining)

	// Key removed once it hits zero: a later decrement reports not-found.
	_, found = s.Decrement("r1", "1.2.3.4", 1)
	assert.False(t, found)
}

func TestMergePartialDropsMismatchedProcessedCount(t *testing.T) {
	s := New()
	s.Reserve("r1", "10.0.0.1", 2)

	task := &types.Task{Checks: []types.Check{{}, {}}}
	partials := []checker.PartialResult{
		{IP: "10.0.0.1", ProcessedChecksPerIP: 1, Services: []types.Service{{Port: 80}}},
	}

	s.MergePartial("r1", task, partials, 2, time.Now())
	assert.Equal(t, 0, s.Len(), "partial with wrong processed-count must not merge")
	assert.Equal(t, 1, s.PendingCount())
}

func TestMergePartialMergesMatchingResult(t *testing.T) {
	s := New()
	s.Reserve("r1", "10.0.0.1", 2)

	task := &types.Task{Checks: []types.Check{{}, {}}, UniqueDCheckID: "dcheck-1"}
	partials := []checker.PartialResult{
		{IP: "10.0.0.1", DNSName: "host.example", ProcessedChecksPerIP: 2, Services: []types.Service{{Port: 80}}},
	}

	s.MergePartial("r1", task, partials, 2, time.Now())
	require.Equal(t, 1, s.Len())
	assert.Equal(t, 0, s.PendingCount())

	flush, _ := s.TakeCompleted(nil, 10)
	require.Len(t, flush, 1)
	assert.Equal(t, "10.0.0.1", flush[0].IP)
	assert.Equal(t, "host.example", flush[0].DNSName)
	assert.Equal(t, "dcheck-1", flush[0].UniqueDCheckID)
	require.Len(t, flush[0].Services, 1)
}

func TestMergeFullRangeRegistersEmptyPlaceholderForSilentIPs(t *testing.T) {
	s := New()
	task := &types.Task{IPRange: mustIPs(t, "10.0.0.1-10.0.0.2")}
	s.Reserve("r1", "10.0.0.1", 1)
	s.Reserve("r1", "10.0.0.2", 1)

	// Checker only reported one of the two IPs; the other stays silent.
	partials := []checker.PartialResult{
		{IP: "10.0.0.1", ProcessedChecksPerIP: 1, Services: []types.Service{{Port: 22}}},
	}

	s.MergeFullRange("r1", task, partials, 1, time.Now())

	flush, _ := s.TakeCompleted(nil, 10)
	require.Len(t, flush, 2)
	byIP := map[string]types.Result{}
	for _, r := range flush {
		byIP[r.IP] = r
	}
	assert.NotEmpty(t, byIP["10.0.0.1"].Services)
	assert.Empty(t, byIP["10.0.0.2"].Services)
}

func TestTakeCompletedRespectsBatchCap(t *testing.T) {
	s := New()
	for i := 0; i < 5; i++ {
		ip := "10.0.0." + string(rune('1'+i))
		s.Reserve("r1", ip, 1)
		s.MergePartial("r1", &types.Task{Checks: []types.Check{{}}}, []checker.PartialResult{
			{IP: ip, ProcessedChecksPerIP: 1},
		}, 1, time.Now())
	}

	flush, _ := s.TakeCompleted(nil, 3)
	assert.Len(t, flush, 3)
	assert.Equal(t, 2, s.Len())
}

func TestTakeCompletedReportsStillIncompleteDrules(t *testing.T) {
	s := New()
	s.Reserve("r1", "10.0.0.1", 1)

	_, stillIncomplete := s.TakeCompleted([]string{"r1", "r2"}, 10)
	assert.True(t, stillIncomplete["r1"])
	assert.False(t, stillIncomplete["r2"])
}

func TestRegisterEmptyJobPlaceholder(t *testing.T) {
	s := New()
	s.RegisterEmptyJob("r1", time.Now())

	flush, _ := s.TakeCompleted(nil, 10)
	require.Len(t, flush, 1)
	assert.Equal(t, "", flush[0].IP)
	assert.Equal(t, "r1", flush[0].DRuleID)
}

func mustIPs(t *testing.T, s string) types.IPRangeSpec {
	t.Helper()
	spec, err := types.ParseIPRange(s)
	require.NoError(t, err)
	return spec
}
