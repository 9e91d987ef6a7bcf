package backoff

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTimeoutFiresAfterBasePeriod(t *testing.T) {
	to := New(10, 1, 8)
	to.Start()
	for i := 0; i < 9; i++ {
		require.False(t, to.Tick())
	}
	require.True(t, to.Tick())
}

func TestStopDisarms(t *testing.T) {
	to := New(5, 1, 8)
	to.Start()
	to.Stop()
	require.False(t, to.Running())
	for i := 0; i < 20; i++ {
		require.False(t, to.Tick())
	}
}

func TestBackoffGrowsAndCapsAttempts(t *testing.T) {
	to := New(4, 1, 2)
	rng := rand.New(rand.NewSource(42))

	to.Start()
	require.Equal(t, uint32(0), to.Attempts())

	to.Backoff(rng)
	require.Equal(t, uint32(1), to.Attempts())

	to.Backoff(rng)
	require.Equal(t, uint32(2), to.Attempts())

	to.Backoff(rng)
	require.Equal(t, uint32(2), to.Attempts(), "capped at maxAttempts")
}

func TestBackoffRemainingAtLeastsBasePeriod(t *testing.T) {
	to := New(4, 1, 4)
	rng := rand.New(rand.NewSource(1))
	to.Start()
	to.Backoff(rng)
	fired := false
	for i := 0; i < 4; i++ {
		if to.Tick() {
			fired = true
			break
		}
	}
	require.False(t, fired, "backed-off deadline must be longer than the base period")
}
