package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOPAEvaluator_DefaultPolicy(t *testing.T) {
	ctx := context.Background()
	e, err := NewOPAEvaluator(ctx, "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	if err := e.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	tests := []struct {
		name       string
		in         DriftInput
		wantAction string
		wantRaise  bool
		wantSev    string
	}{
		{"no drift", DriftInput{}, ActionAllow, false, "low"},
		{"ip only", DriftInput{IPChanged: true}, ActionAllow, true, "medium"},
		{"user agent", DriftInput{UserAgentChanged: true}, ActionDestroy, true, "high"},
		{"both", DriftInput{IPChanged: true, UserAgentChanged: true}, ActionDestroy, true, "high"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := e.EvaluateDrift(ctx, tt.in)
			if err != nil {
				t.Fatalf("EvaluateDrift: %v", err)
			}
			if d.Action != tt.wantAction || d.RaiseEvent != tt.wantRaise || d.Severity != tt.wantSev {
				t.Errorf("decision = %+v, want %s/%v/%s", d, tt.wantAction, tt.wantRaise, tt.wantSev)
			}
		})
	}
}

func TestOPAEvaluator_CustomPolicy(t *testing.T) {
	strict := `package escrow.session_drift

default decision = {"action": "allow", "raise_event": false}

decision = {"action": "destroy", "raise_event": true, "severity": "high", "reason": "strict"} if {
	input.ip_changed
	input.session.role != "admin"
}
`
	path := filepath.Join(t.TempDir(), "drift.rego")
	if err := os.WriteFile(path, []byte(strict), 0o600); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	e, err := NewOPAEvaluatorFromFile(ctx, path)
	if err != nil {
		t.Fatalf("NewOPAEvaluatorFromFile: %v", err)
	}
	d, _ := e.EvaluateDrift(ctx, DriftInput{IPChanged: true, Role: "buyer"})
	if d.Action != ActionDestroy || d.Reason != "strict" {
		t.Errorf("buyer decision = %+v", d)
	}
	d, _ = e.EvaluateDrift(ctx, DriftInput{IPChanged: true, Role: "admin"})
	if d.Action != ActionAllow || d.RaiseEvent {
		t.Errorf("admin decision = %+v", d)
	}
}

func TestOPAEvaluator_Errors(t *testing.T) {
	ctx := context.Background()
	if _, err := NewOPAEvaluator(ctx, "package escrow.session_drift\n\ndecision = {"); err == nil {
		t.Error("malformed policy should fail to compile")
	}
	if _, err := NewOPAEvaluatorFromFile(ctx, filepath.Join(t.TempDir(), "missing.rego")); err == nil {
		t.Error("missing file should fail")
	}

	// A policy in another package leaves the decision undefined.
	e, err := NewOPAEvaluator(ctx, "package other\n\nx = 1\n")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	d, err := e.EvaluateDrift(ctx, DriftInput{UserAgentChanged: true})
	if err == nil {
		t.Error("undefined decision should return an error")
	}
	if d != fallbackDecision {
		t.Errorf("decision = %+v, want fallback", d)
	}

	bad, err := NewOPAEvaluator(ctx, "package escrow.session_drift\n\ndecision = {\"action\": \"quarantine\"}\n")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	if _, err := bad.EvaluateDrift(ctx, DriftInput{}); err == nil {
		t.Error("unknown action should return an error")
	}
}
