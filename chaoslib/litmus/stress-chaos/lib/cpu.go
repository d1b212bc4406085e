package lib

import (
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/litmuschaos/litmus-scenarios/pkg/log"
	"github.com/pkg/errors"
)

// dutyPeriod is the length of one busy/idle cycle of a burner
const dutyPeriod = 100 * time.Millisecond

// CPUBurner keeps a number of cores busy for a fraction of every duty period
type CPUBurner struct {
	Workers     int
	Utilization float64

	stop chan struct{}
	wg   sync.WaitGroup
	mu   sync.Mutex
}

// NewCPUBurner validates the load, zero workers means one per core
func NewCPUBurner(workers int, utilization float64) (*CPUBurner, error) {
	if math.IsNaN(utilization) || utilization <= 0 || utilization > 1 {
		return nil, errors.Errorf("utilization %v is out of range (0,1]", utilization)
	}
	if workers < 0 {
		return nil, errors.Errorf("workers must not be negative, got %d", workers)
	}
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	return &CPUBurner{Workers: workers, Utilization: utilization}, nil
}

// Start launches the burner goroutines
func (b *CPUBurner) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stop != nil {
		return
	}
	b.stop = make(chan struct{})
	log.Infof("[Chaos]: Starting %d cpu burners at %.0f%% utilization", b.Workers, b.Utilization*100)
	busy := time.Duration(float64(dutyPeriod) * b.Utilization)
	for i := 0; i < b.Workers; i++ {
		b.wg.Add(1)
		go burn(b.stop, &b.wg, busy)
	}
}

// Stop halts every burner and waits for them to exit
func (b *CPUBurner) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stop == nil {
		return
	}
	close(b.stop)
	b.wg.Wait()
	b.stop = nil
	log.Info("[Revert]: CPU burners stopped")
}

// Running reports whether the burners are active
func (b *CPUBurner) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stop != nil
}

func burn(stop <-chan struct{}, wg *sync.WaitGroup, busy time.Duration) {
	defer wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		start := time.Now()
		for time.Since(start) < busy {
			select {
			case <-stop:
				return
			default:
			}
		}
		if idle := dutyPeriod - busy; idle > 0 {
			select {
			case <-stop:
				return
			case <-time.After(idle):
			}
		}
	}
}
