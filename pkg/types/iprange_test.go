package types

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIPRange_SingleHost(t *testing.T) {
	spec, err := ParseIPRange("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 1, spec.Count())

	var seen []string
	spec.Each(func(ip net.IP) bool {
		seen = append(seen, ip.String())
		return true
	})
	assert.Equal(t, []string{"10.0.0.1"}, seen)
}

func TestParseIPRange_LastOctetRange(t *testing.T) {
	spec, err := ParseIPRange("10.0.0.1-4")
	require.NoError(t, err)
	assert.Equal(t, 4, spec.Count())

	var seen []string
	spec.Each(func(ip net.IP) bool {
		seen = append(seen, ip.String())
		return true
	})
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"}, seen)
}

func TestParseIPRange_FullRangeAndCIDR(t *testing.T) {
	spec, err := ParseIPRange("192.168.0.0-192.168.0.1,10.0.0.0/30")
	require.NoError(t, err)
	// 2 addresses from the explicit range + 4 from the /30
	assert.Equal(t, 6, spec.Count())
}

func TestParseIPRange_Invalid(t *testing.T) {
	_, err := ParseIPRange("not-an-ip")
	assert.Error(t, err)

	_, err = ParseIPRange("")
	assert.Error(t, err)
}

func TestParsePortRange(t *testing.T) {
	pr, err := ParsePortRange("22,80,8000-8002")
	require.NoError(t, err)
	assert.Equal(t, 5, pr.Count())

	var ports []int
	pr.Each(func(p int) bool {
		ports = append(ports, p)
		return true
	})
	assert.Equal(t, []int{22, 80, 8000, 8001, 8002}, ports)
}

func TestParsePortRange_Invalid(t *testing.T) {
	_, err := ParsePortRange("99999")
	assert.Error(t, err)

	_, err = ParsePortRange("80-22")
	assert.Error(t, err)
}

func TestTask_ExpectedChecksPerIP(t *testing.T) {
	task := &Task{Checks: []Check{{DCheckID: "1"}, {DCheckID: "2"}}}
	assert.Equal(t, 2, task.ExpectedChecksPerIP())
}

func TestJob_PopTaskAndCapacity(t *testing.T) {
	job := &Job{
		WorkersMax: 2,
		Tasks:      []*Task{{Kind: TaskKindSync}, {Kind: TaskKindICMP}},
	}
	assert.True(t, job.HasCapacity())

	first := job.PopTask()
	require.NotNil(t, first)
	assert.Equal(t, TaskKindSync, first.Kind)

	second := job.PopTask()
	require.NotNil(t, second)
	assert.Equal(t, TaskKindICMP, second.Kind)

	assert.Nil(t, job.PopTask())
}
