package engine

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"escrow-sentinel/internal/alerting/domain"
)

// Detector windows and floors. Origins below a floor produce no derived event.
const (
	detectorLookback      = 15 * time.Minute
	failureSpikeWindow    = detectorLookback
	failureSpikeFloor     = 5
	apiSpikeWindow        = time.Minute
	apiSpikeFloor         = 100
	driftDetectorSource   = "drift_detector"
	anomalyDetectorSource = "anomaly_detector"
)

// ResourceProbe samples process resource usage.
type ResourceProbe interface {
	Sample(ctx context.Context) (ResourceSample, error)
}

// ResourceSample is one resource reading.
type ResourceSample struct {
	MemoryPercent float64
	HeapAllocMB   float64
	Goroutines    int
}

// DriftProbe reports configuration changes observed since the previous call.
type DriftProbe interface {
	// TakeChanges returns the files changed since the last call and resets the set.
	TakeChanges() []string
}

// Detector derives synthetic security events from recent activity and feeds them back into the engine.
type Detector struct {
	engine   *Engine
	resource ResourceProbe
	drift    DriftProbe
	nowF     func() time.Time

	mu sync.Mutex
	// reported holds, per origin ip, when the last failure_spike was derived for it.
	reported map[string]time.Time
}

// NewDetector returns a detector over engine. resource and drift may be nil.
func NewDetector(engine *Engine, resource ResourceProbe, drift DriftProbe) *Detector {
	return &Detector{
		engine:   engine,
		resource: resource,
		drift:    drift,
		nowF:     func() time.Time { return time.Now().UTC() },
		reported: make(map[string]time.Time),
	}
}

// Run performs one detection pass and returns the alerts raised by the derived events.
func (d *Detector) Run(ctx context.Context) ([]*domain.Alert, error) {
	now := d.nowF()
	events := d.derive(ctx, now)
	var alerts []*domain.Alert
	for _, ev := range events {
		alerts = append(alerts, d.engine.ProcessEvent(ctx, ev)...)
	}
	return alerts, nil
}

func (d *Detector) derive(ctx context.Context, now time.Time) []domain.Event {
	recent := d.engine.RecentEvents(now.Add(-detectorLookback))
	failures := countByOrigin(recent, domain.EventLoginFailure, now.Add(-failureSpikeWindow))
	calls := countByOrigin(recent, domain.EventAPICall, now.Add(-apiSpikeWindow))

	var out []domain.Event
	d.mu.Lock()
	for ip, last := range d.reported {
		if now.Sub(last) >= failureSpikeWindow {
			delete(d.reported, ip)
		}
	}
	for _, ip := range sortedKeys(failures) {
		n := failures[ip]
		if n < failureSpikeFloor {
			continue
		}
		if _, seen := d.reported[ip]; seen {
			continue
		}
		d.reported[ip] = now
		out = append(out, domain.Event{
			Type:      domain.EventFailureSpike,
			Severity:  domain.SeverityMedium,
			Origin:    domain.Origin{IP: ip},
			Detail:    map[string]any{"failureCount": n, "window": failureSpikeWindow.String(), "source": anomalyDetectorSource},
			Timestamp: now,
		})
	}
	d.mu.Unlock()

	for _, ip := range sortedKeys(calls) {
		n := calls[ip]
		if n < apiSpikeFloor {
			continue
		}
		out = append(out, domain.Event{
			Type:      domain.EventAPISpike,
			Severity:  domain.SeverityMedium,
			Origin:    domain.Origin{IP: ip},
			Detail:    map[string]any{"callCount": n, "window": apiSpikeWindow.String(), "source": anomalyDetectorSource},
			Timestamp: now,
		})
	}

	if d.resource != nil {
		s, err := d.resource.Sample(ctx)
		if err != nil {
			log.Printf("alerting: resource probe failed: %v", err)
		} else {
			out = append(out, domain.Event{
				Type:     domain.EventResourceUsage,
				Severity: domain.SeverityLow,
				Origin:   domain.Origin{IP: "localhost"},
				Detail: map[string]any{
					"memoryPercent": s.MemoryPercent,
					"heapAllocMB":   s.HeapAllocMB,
					"goroutines":    s.Goroutines,
					"source":        anomalyDetectorSource,
				},
				Timestamp: now,
			})
		}
	}

	if d.drift != nil {
		for _, file := range d.drift.TakeChanges() {
			out = append(out, domain.Event{
				Type:      domain.EventConfigChange,
				Severity:  domain.SeverityMedium,
				Origin:    domain.Origin{IP: "localhost"},
				Detail:    map[string]any{"authorized": false, "source": driftDetectorSource, "file": file},
				Timestamp: now,
			})
		}
	}
	return out
}

// countByOrigin counts events of type typ newer than since, per origin ip.
func countByOrigin(events []domain.Event, typ string, since time.Time) map[string]int {
	counts := make(map[string]int)
	for i := range events {
		ev := &events[i]
		if ev.Type != typ || ev.Origin.IP == "" || !ev.Timestamp.After(since) {
			continue
		}
		counts[ev.Origin.IP]++
	}
	return counts
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
