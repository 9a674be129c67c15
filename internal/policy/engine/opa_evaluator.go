package engine

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"
)

const driftQuery = "data.escrow.session_drift.decision"

// DefaultDriftPolicy destroys sessions whose user agent changed and lets ip-only changes through
// while still raising an event.
const DefaultDriftPolicy = `package escrow.session_drift

default decision = {"action": "allow", "raise_event": false, "severity": "low", "reason": "no_drift"}

decision = {"action": "destroy", "raise_event": true, "severity": "high", "reason": "user_agent_changed"} if {
	input.user_agent_changed
}

decision = {"action": "allow", "raise_event": true, "severity": "medium", "reason": "ip_changed"} if {
	input.ip_changed
	not input.user_agent_changed
}
`

// fallbackDecision is used when the policy cannot be evaluated.
var fallbackDecision = DriftDecision{Action: ActionAllow, RaiseEvent: true, Severity: "medium", Reason: "policy_error"}

// OPAEvaluator evaluates the session drift policy with OPA Rego. The query is prepared once.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy (DefaultDriftPolicy when empty). The policy must define
// data.escrow.session_drift.decision.
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultDriftPolicy
	}
	pq, err := rego.New(
		rego.Query(driftQuery),
		rego.Module("session_drift.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile drift policy: %w", err)
	}
	return &OPAEvaluator{query: pq}, nil
}

// NewOPAEvaluatorFromFile reads the policy at path; an empty path selects the default policy.
func NewOPAEvaluatorFromFile(ctx context.Context, path string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx, "")
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read drift policy %s: %w", path, err)
	}
	return NewOPAEvaluator(ctx, string(src))
}

// HealthCheck evaluates the policy against a no-drift input.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.evaluate(ctx, DriftInput{})
	return err
}

// EvaluateDrift returns the policy decision. On evaluation failure it returns an allow decision
// that raises an event, together with the error.
func (e *OPAEvaluator) EvaluateDrift(ctx context.Context, in DriftInput) (DriftDecision, error) {
	d, err := e.evaluate(ctx, in)
	if err != nil {
		log.Printf("policy: drift evaluation failed: %v, using fallback", err)
		return fallbackDecision, err
	}
	return d, nil
}

func (e *OPAEvaluator) evaluate(ctx context.Context, in DriftInput) (DriftDecision, error) {
	input := map[string]interface{}{
		"ip_changed":         in.IPChanged,
		"user_agent_changed": in.UserAgentChanged,
		"session": map[string]interface{}{
			"subject_id":  in.SubjectID,
			"role":        in.Role,
			"age_seconds": in.SessionAge,
		},
		"request": map[string]interface{}{
			"ip":         in.RequestIP,
			"user_agent": in.RequestUserAgent,
		},
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return DriftDecision{}, fmt.Errorf("eval drift policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return DriftDecision{}, fmt.Errorf("drift policy returned no decision")
	}
	obj, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return DriftDecision{}, fmt.Errorf("drift decision is %T, want object", rs[0].Expressions[0].Value)
	}
	d := DriftDecision{Action: ActionAllow}
	if v, ok := obj["action"].(string); ok {
		d.Action = v
	}
	if v, ok := obj["raise_event"].(bool); ok {
		d.RaiseEvent = v
	}
	if v, ok := obj["severity"].(string); ok {
		d.Severity = v
	}
	if v, ok := obj["reason"].(string); ok {
		d.Reason = v
	}
	if d.Action != ActionAllow && d.Action != ActionDestroy {
		return DriftDecision{}, fmt.Errorf("drift policy returned unknown action %q", d.Action)
	}
	return d, nil
}
