package procstats

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectSelf(t *testing.T) {
	pid := os.Getpid()

	sample, err := Collect(pid)
	require.NoError(t, err)
	require.NotNil(t, sample.Process)
	require.NotNil(t, sample.Host)

	assert.Equal(t, pid, sample.Process.PID)
	assert.Greater(t, sample.Process.MemRSS, uint64(0))
	assert.GreaterOrEqual(t, sample.Process.CPUPercent, 0.0)
	assert.False(t, sample.Timestamp.IsZero())
}

func TestCollectProcessMissing(t *testing.T) {
	// PIDs are positive; -1 never names a process.
	_, err := CollectProcess(-1)
	require.Error(t, err)
}

func TestCollectHost(t *testing.T) {
	hm := CollectHost()
	require.NotNil(t, hm)
	assert.GreaterOrEqual(t, hm.MemTotal, hm.MemUsed)
}
