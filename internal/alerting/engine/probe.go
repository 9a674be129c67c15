package engine

import (
	"context"
	"runtime"
)

// RuntimeProbe reads Go runtime memory stats and reports usage against a soft limit.
type RuntimeProbe struct {
	softLimitBytes uint64
}

// NewRuntimeProbe returns a probe for a soft limit in MiB. softLimitMB <= 0 means 1024.
func NewRuntimeProbe(softLimitMB int) *RuntimeProbe {
	if softLimitMB <= 0 {
		softLimitMB = 1024
	}
	return &RuntimeProbe{softLimitBytes: uint64(softLimitMB) << 20}
}

// Sample reads runtime.MemStats. Sys is compared with the soft limit.
func (p *RuntimeProbe) Sample(context.Context) (ResourceSample, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ResourceSample{
		MemoryPercent: float64(ms.Sys) / float64(p.softLimitBytes) * 100,
		HeapAllocMB:   float64(ms.HeapAlloc) / (1 << 20),
		Goroutines:    runtime.NumGoroutine(),
	}, nil
}
