package lib

import (
	"os"
	"runtime/debug"
	"sync"

	"github.com/docker/go-units"
	"github.com/litmuschaos/litmus-scenarios/pkg/log"
	"github.com/pkg/errors"
)

// chunkSize bounds a single allocation so that a failed request does not hold a partial block
const chunkSize = 64 * units.MiB

// MemoryHog allocates and touches memory so the pages are resident
type MemoryHog struct {
	mu     sync.Mutex
	chunks [][]byte
	held   int64
}

// Allocate grabs size bytes. A size the runtime refuses to allocate is released
// and reported as an error. Exhausting host memory aborts the process, callers
// check the size against available memory first.
func (m *MemoryHog) Allocate(size int64) (err error) {
	if size <= 0 {
		return errors.Errorf("invalid allocation size %d", size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held > 0 {
		return errors.New("memory is already held")
	}

	defer func() {
		if r := recover(); r != nil {
			m.release()
			err = errors.Errorf("unable to allocate %s: %v", units.BytesSize(float64(size)), r)
		}
	}()

	log.Infof("[Chaos]: Allocating %s of memory", units.BytesSize(float64(size)))
	page := os.Getpagesize()
	for remaining := size; remaining > 0; remaining -= chunkSize {
		n := remaining
		if n > chunkSize {
			n = chunkSize
		}
		chunk := make([]byte, n)
		for i := 0; i < len(chunk); i += page {
			chunk[i] = 1
		}
		m.chunks = append(m.chunks, chunk)
		m.held += n
	}
	return nil
}

// Release drops the held memory and hands it back to the OS
func (m *MemoryHog) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held == 0 {
		return
	}
	log.Infof("[Revert]: Releasing %s of memory", units.BytesSize(float64(m.held)))
	m.release()
}

func (m *MemoryHog) release() {
	m.chunks = nil
	m.held = 0
	debug.FreeOSMemory()
}

// Held returns the number of bytes currently allocated
func (m *MemoryHog) Held() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}
