package scheduler

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

var ErrCheckerRunning = errors.New("scheduler: checker already running")

// PidFile guards against two checkers polling the same database. Acquire
// refuses to start when the recorded process is still alive; a stale file
// left by a crashed checker is taken over silently.
type PidFile struct {
	path string
}

func NewPidFile(path string) *PidFile {
	return &PidFile{path: path}
}

// Acquire records the current process id, failing if another live
// checker holds the file.
func (p *PidFile) Acquire() error {
	if pid, err := p.read(); err == nil && processAlive(pid) {
		return fmt.Errorf("%w: pid %d", ErrCheckerRunning, pid)
	}

	return os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// Release removes the file. A missing file is not an error.
func (p *PidFile) Release() error {
	err := os.Remove(p.path)
	if os.IsNotExist(err) {
		return nil
	}

	return err
}

func (p *PidFile) read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file %s: %w", p.path, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("invalid pid %d in %s", pid, p.path)
	}

	return pid, nil
}

// processAlive probes the pid with signal 0, which checks existence
// without signalling.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}
