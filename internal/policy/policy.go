// Package policy turns a run's tool transcript into a confidence score and an
// approval requirement. Everything here is pure.
package policy

import (
	"math"

	"github.com/Cyclone1070/propagent/internal/agent"
	"github.com/Cyclone1070/propagent/internal/tool"
)

// BaseConfidence is the score of a run whose every tool call failed.
const BaseConfidence = 0.1

// Score returns min(1, 0.1 + 0.9 * successful/total). A run without tool
// calls scores 1.
func Score(calls []tool.Result) float64 {
	if len(calls) == 0 {
		return 1
	}
	succeeded := 0
	for _, c := range calls {
		if c.Success {
			succeeded++
		}
	}
	if succeeded == len(calls) {
		return 1
	}
	ratio := float64(succeeded) / float64(len(calls))
	return math.Min(1, BaseConfidence+(1-BaseConfidence)*ratio)
}

// NeedsApproval is true when confidence is below the agent's threshold or any
// call in the transcript, successful or not, names a gated tool.
func NeedsApproval(s agent.Settings, confidence float64, calls []tool.Result) bool {
	if confidence < s.ConfidenceThreshold {
		return true
	}
	return len(GatedCalls(s, calls)) > 0
}

// GatedCalls returns the distinct gated tool names used, in first-use order.
func GatedCalls(s agent.Settings, calls []tool.Result) []string {
	var gated []string
	seen := make(map[string]bool)
	for _, c := range calls {
		if seen[c.Name] || !s.RequiresApproval(c.Name) {
			continue
		}
		seen[c.Name] = true
		gated = append(gated, c.Name)
	}
	return gated
}

// Verdict is the policy result for one run.
type Verdict struct {
	Confidence       float64
	RequiresApproval bool
}

// Evaluate scores a finished run. A run that ended on a model-call failure
// gets confidence 0 and no approval: there is nothing to approve.
func Evaluate(s agent.Settings, calls []tool.Result, providerFailed bool) Verdict {
	if providerFailed {
		return Verdict{Confidence: 0, RequiresApproval: false}
	}
	c := Score(calls)
	return Verdict{Confidence: c, RequiresApproval: NeedsApproval(s, c, calls)}
}
