package metrics

import (
	"context"
	"runtime"
	"time"
)

// StartSystemSampler refreshes the memory and goroutine gauges every refresh
// interval until ctx is done.
func StartSystemSampler(ctx context.Context) {
	go globalManager.sampleSystem(ctx)
}

func (m *Manager) sampleSystem(ctx context.Context) {
	ticker := time.NewTicker(m.refreshInterval)
	defer ticker.Stop()

	m.sampleOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sampleOnce()
		}
	}
}

func (m *Manager) sampleOnce() {
	if !m.enabled {
		return
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.systemMemoryUsage.Set(float64(ms.Alloc))
	m.systemGoroutineCount.Set(float64(runtime.NumGoroutine()))
}
