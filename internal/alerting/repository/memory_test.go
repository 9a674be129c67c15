package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"escrow-sentinel/internal/alerting/domain"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func alertAt(id string, ts time.Time, sev domain.Severity, st domain.Status) *domain.Alert {
	return &domain.Alert{ID: id, Timestamp: ts, Severity: sev, Status: st}
}

func TestMemoryAlertRepository_AddGetUpdate(t *testing.T) {
	r := NewMemoryAlertRepository(10)
	ctx := context.Background()
	r.Add(ctx, alertAt("a1", t0, domain.SeverityHigh, domain.StatusNew))

	updated, ok := r.Update(ctx, "a1", func(a *domain.Alert) {
		a.Status = domain.StatusInvestigating
		a.Notes = append(a.Notes, domain.Note{Text: "looking"})
		a.Timestamp = t0.Add(time.Hour)
	})
	if !ok {
		t.Fatal("Update should find a1")
	}
	if !updated.Timestamp.Equal(t0) {
		t.Errorf("Timestamp = %v, Update must preserve creation time", updated.Timestamp)
	}
	got, _ := r.Get(ctx, "a1")
	if got.Status != domain.StatusInvestigating || len(got.Notes) != 1 {
		t.Errorf("got = %+v", got)
	}
	got.Notes[0].Text = "mutated"
	again, _ := r.Get(ctx, "a1")
	if again.Notes[0].Text != "looking" {
		t.Error("Get must return a copy")
	}
	if _, ok := r.Update(ctx, "missing", func(*domain.Alert) {}); ok {
		t.Error("Update(missing) should return false")
	}
}

func TestMemoryAlertRepository_CapacityDropsOldest(t *testing.T) {
	r := NewMemoryAlertRepository(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		r.Add(ctx, alertAt(fmt.Sprintf("a%d", i), t0.Add(time.Duration(i)*time.Minute), domain.SeverityLow, domain.StatusNew))
	}
	if _, ok := r.Get(ctx, "a0"); ok {
		t.Error("a0 should have been dropped")
	}
	recent := r.Recent(ctx, 10)
	if len(recent) != 3 || recent[0].ID != "a4" || recent[2].ID != "a2" {
		t.Errorf("Recent = %v", recent)
	}
}

func TestMemoryAlertRepository_Summary(t *testing.T) {
	r := NewMemoryAlertRepository(10)
	ctx := context.Background()
	r.Add(ctx, alertAt("a1", t0, domain.SeverityHigh, domain.StatusNew))
	r.Add(ctx, alertAt("a2", t0, domain.SeverityHigh, domain.StatusInvestigating))
	r.Add(ctx, alertAt("a3", t0, domain.SeverityMedium, domain.StatusResolved))
	r.Add(ctx, alertAt("a4", t0, domain.SeverityLow, domain.StatusFalsePositive))

	s := r.Summary(ctx)
	if s.Total != 4 || s.Open != 2 || s.Resolved != 2 {
		t.Errorf("summary = %+v", s)
	}
	if s.BySeverity[domain.SeverityHigh] != 2 || s.BySeverity[domain.SeverityCritical] != 0 {
		t.Errorf("BySeverity = %v", s.BySeverity)
	}
}

func TestMemoryAlertRepository_DeleteOlderThan(t *testing.T) {
	r := NewMemoryAlertRepository(10)
	ctx := context.Background()
	r.Add(ctx, alertAt("old", t0, domain.SeverityLow, domain.StatusNew))
	r.Add(ctx, alertAt("new", t0.Add(48*time.Hour), domain.SeverityLow, domain.StatusNew))

	if n := r.DeleteOlderThan(ctx, t0.Add(24*time.Hour)); n != 1 {
		t.Errorf("DeleteOlderThan = %d, want 1", n)
	}
	if _, ok := r.Get(ctx, "old"); ok {
		t.Error("old alert should be gone")
	}
	if _, ok := r.Get(ctx, "new"); !ok {
		t.Error("new alert should remain")
	}
}

func TestMemoryMetricRepository(t *testing.T) {
	r := NewMemoryMetricRepository(2)
	ctx := context.Background()
	tags := map[string]string{"rule_id": "r1"}
	r.Add(ctx, domain.Metric{Name: "m", Value: 1, Timestamp: t0, Tags: tags})
	tags["rule_id"] = "mutated"
	r.Add(ctx, domain.Metric{Name: "m", Value: 2, Timestamp: t0.Add(time.Hour)})
	r.Add(ctx, domain.Metric{Name: "m", Value: 3, Timestamp: t0.Add(2 * time.Hour)})

	if r.Len(ctx) != 2 {
		t.Errorf("Len = %d, want 2", r.Len(ctx))
	}
	recent := r.Recent(ctx, 5)
	if len(recent) != 2 || recent[0].Value != 3 || recent[1].Value != 2 {
		t.Errorf("Recent = %v", recent)
	}
	if n := r.DeleteOlderThan(ctx, t0.Add(90*time.Minute)); n != 1 {
		t.Errorf("DeleteOlderThan = %d, want 1", n)
	}

	r2 := NewMemoryMetricRepository(0)
	r2.Add(ctx, domain.Metric{Name: "m", Timestamp: t0, Tags: tags})
	tags["rule_id"] = "again"
	if got := r2.Recent(ctx, 1)[0].Tags["rule_id"]; got != "mutated" {
		t.Errorf("tag = %q, Add must copy tags", got)
	}
}

func TestMemoryMetricRepository_RecentReturnsCopies(t *testing.T) {
	r := NewMemoryMetricRepository(0)
	ctx := context.Background()
	r.Add(ctx, domain.Metric{Name: "m", Timestamp: t0, Tags: map[string]string{"rule_id": "r1"}})

	r.Recent(ctx, 1)[0].Tags["rule_id"] = "changed"
	if got := r.Recent(ctx, 1)[0].Tags["rule_id"]; got != "r1" {
		t.Errorf("stored tag = %q, want r1", got)
	}
}
