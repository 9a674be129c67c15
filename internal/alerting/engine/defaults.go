package engine

import (
	"time"

	"escrow-sentinel/internal/alerting/domain"
)

// Default rule ids.
const (
	RuleBruteForce               = "brute-force"
	RuleAPIAbuse                 = "api-abuse"
	RuleDataAccessAnomaly        = "data-access-anomaly"
	RuleUnauthorizedConfigChange = "unauthorized-config-change"
	RuleResourceExhaustion       = "resource-exhaustion"
	RuleLoginFailureSpike        = "login-failure-spike"
	RuleAPICallSpike             = "api-call-spike"
)

// DefaultRules returns the pre-configured rule set. The last three consume events derived by the Detector.
func DefaultRules() []domain.Rule {
	return []domain.Rule{
		{
			ID:          RuleBruteForce,
			Name:        "Brute-force login attempts",
			Description: "Repeated failed logins in a short period",
			Category:    "authentication",
			Severity:    domain.SeverityHigh,
			EventType:   domain.EventLoginFailure,
			Condition:   domain.CountInWindow{Threshold: 5, Window: 5 * time.Minute},
			Enabled:     true,
		},
		{
			ID:          RuleAPIAbuse,
			Name:        "API abuse",
			Description: "Unusually high API call rate",
			Category:    "api",
			Severity:    domain.SeverityMedium,
			EventType:   domain.EventAPICall,
			Condition:   domain.CountInWindow{Threshold: 100, Window: time.Minute},
			Enabled:     true,
		},
		{
			ID:          RuleDataAccessAnomaly,
			Name:        "Data access anomaly",
			Description: "Data access flagged as unusual volume",
			Category:    "data_access",
			Severity:    domain.SeverityHigh,
			EventType:   domain.EventDataAccess,
			Condition:   domain.PatternMatch{Fields: map[string]string{"unusualVolume": "true"}},
			Enabled:     true,
		},
		{
			ID:          RuleUnauthorizedConfigChange,
			Name:        "Unauthorized configuration change",
			Description: "Configuration changed without authorization",
			Category:    "configuration",
			Severity:    domain.SeverityMedium,
			EventType:   domain.EventConfigChange,
			Condition:   domain.PatternMatch{Fields: map[string]string{"authorized": "false"}, Window: 24 * time.Hour},
			Enabled:     true,
		},
		{
			ID:          RuleResourceExhaustion,
			Name:        "Resource exhaustion",
			Description: "Process memory close to its soft limit",
			Category:    "system",
			Severity:    domain.SeverityMedium,
			EventType:   domain.EventResourceUsage,
			Condition:   domain.ThresholdExceeded{Field: "memoryPercent", Threshold: 90},
			Enabled:     true,
		},
		{
			ID:          RuleLoginFailureSpike,
			Name:        "Login failure spike",
			Description: "Many failed logins from one origin over 15 minutes",
			Category:    "authentication",
			Severity:    domain.SeverityHigh,
			EventType:   domain.EventFailureSpike,
			Condition:   domain.ThresholdExceeded{Field: "failureCount", Threshold: 10},
			Enabled:     true,
		},
		{
			ID:          RuleAPICallSpike,
			Name:        "API call spike",
			Description: "Very high API call volume from one origin",
			Category:    "api",
			Severity:    domain.SeverityHigh,
			EventType:   domain.EventAPISpike,
			Condition:   domain.ThresholdExceeded{Field: "callCount", Threshold: 500},
			Enabled:     true,
		},
	}
}
