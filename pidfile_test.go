package scheduler

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPidFile(t *testing.T) *PidFile {
	t.Helper()

	return NewPidFile(filepath.Join(t.TempDir(), "checkerd.pid"))
}

func TestPidFileAcquireRelease(t *testing.T) {
	p := testPidFile(t)

	require.NoError(t, p.Acquire())

	pid, err := p.read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, p.Release())
	_, err = p.read()
	assert.Error(t, err)
}

func TestPidFileRefusesLiveOwner(t *testing.T) {
	p := testPidFile(t)

	// The test process itself is the live owner.
	require.NoError(t, os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o644))

	assert.ErrorIs(t, p.Acquire(), ErrCheckerRunning)
}

func TestPidFileTakesOverStaleFile(t *testing.T) {
	p := testPidFile(t)

	// Garbage contents count as stale, same as a dead pid.
	require.NoError(t, os.WriteFile(p.path, []byte("not-a-pid"), 0o644))

	require.NoError(t, p.Acquire())

	pid, err := p.read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPidFileReleaseWithoutAcquire(t *testing.T) {
	p := testPidFile(t)

	assert.NoError(t, p.Release())
}
