package kestrel

import "github.com/kestrelhq/kestrel-go/internal/core"

// Re-exported evaluation engine types. The engine itself is pure: it holds
// no state and performs no I/O, so it can be used directly against flag
// definitions obtained elsewhere (tests, local files, server-side tooling).
type (
	// Context carries the attributes targeting rules are evaluated against.
	Context = core.Context

	// Filter is a targeting predicate node.
	Filter = core.Filter

	// FilterType discriminates the Filter variants.
	FilterType = core.FilterType

	// Operator is a context-filter comparison or a group combinator.
	Operator = core.Operator

	// Rule is a single targeting rule of a flag.
	Rule = core.Rule

	// ConfigVariant is one candidate remote-config payload for a flag.
	ConfigVariant = core.ConfigVariant

	// FlagDefinition is the complete rule set for one flag.
	FlagDefinition = core.FlagDefinition

	// EvaluationResult is the outcome of evaluating one flag.
	EvaluationResult = core.EvaluationResult

	// VariantResult is the outcome of remote-config variant selection.
	VariantResult = core.VariantResult

	// Reason explains how an outcome was produced.
	Reason = core.Reason
)

// Reason codes attached to evaluation outcomes.
const (
	ReasonTargetingMatch = core.ReasonTargetingMatch
	ReasonDefault        = core.ReasonDefault
	ReasonNoMatch        = core.ReasonNoMatch
	ReasonError          = core.ReasonError
)

// EvaluateFlag runs flag's targeting rules against ctx without touching the
// client's cache or telemetry. Rules are evaluated in order; the first match
// enables the flag and no match leaves it disabled.
func EvaluateFlag(flag FlagDefinition, ctx Context) (EvaluationResult, error) {
	return core.Evaluate(flag, ctx)
}

// SelectConfigVariant picks the remote-config variant for ctx from variants,
// falling back to the designated default when no filter matches.
func SelectConfigVariant(variants []ConfigVariant, ctx Context) (VariantResult, error) {
	return core.SelectVariant(variants, ctx)
}

// InRollout reports whether the attribute value falls inside the rollout
// fraction for key. The decision is deterministic: the same key, value, and
// threshold always produce the same answer, on every SDK.
func InRollout(key, attributeValue string, threshold float64) bool {
	return core.InRollout(key, attributeValue, threshold)
}

// ValidateFlag checks a flag definition for structural problems: empty keys,
// unknown operators or filter types, thresholds outside [0,1], multiple
// default variants.
func ValidateFlag(flag FlagDefinition) error {
	return core.ValidateFlag(flag)
}
