package core

// EvaluationResult is the immutable outcome of evaluating one flag against
// one context. It is produced fresh per call and never mutated afterwards, so
// it can be handed to telemetry as-is.
type EvaluationResult struct {
	// Value is the flag's enablement decision.
	Value bool

	// Flag is the definition that was evaluated.
	Flag FlagDefinition

	// Context is the context the evaluation ran against.
	Context Context

	// RuleResults holds each rule's boolean outcome in declaration order.
	// Every rule is evaluated, even after a match has decided Value, so that
	// per-rule telemetry is complete.
	RuleResults []bool

	// MissingFields is the deduplicated union, in first-seen order, of fields
	// referenced by any rule but absent from the context.
	MissingFields []string
}

// Evaluate walks flag's rules in order against ctx. The first matching rule
// enables the flag; no match leaves it disabled (flags are deny-by-default).
//
// Evaluate never fabricates a definition: looking up unknown flag keys and
// choosing fallbacks is the caller's concern.
func Evaluate(flag FlagDefinition, ctx Context) (EvaluationResult, error) {
	fields, err := Flatten(ctx)
	if err != nil {
		return EvaluationResult{}, err
	}

	result := EvaluationResult{
		Flag:        flag,
		Context:     ctx,
		RuleResults: make([]bool, 0, len(flag.Rules)),
	}

	missing := newFieldSet()
	for _, rule := range flag.Rules {
		match, err := Match(rule.Filter, fields)
		if err != nil {
			return EvaluationResult{}, err
		}
		result.RuleResults = append(result.RuleResults, match.Matched)
		missing.addAll(match.MissingFields)
		if match.Matched && !result.Value {
			result.Value = true
		}
	}
	result.MissingFields = missing.ordered

	return result, nil
}

// VariantResult is the outcome of remote-config variant selection. A zero
// Key with ReasonNoMatch means "no configuration", which callers must treat
// as a normal outcome rather than an error.
type VariantResult struct {
	Key           string
	Payload       []byte
	Reason        Reason
	MissingFields []string
}

// SelectVariant picks the first variant whose filter matches ctx, using the
// same matching semantics as flag targeting. If nothing matches, the variant
// marked Default (if any) is returned with ReasonDefault so telemetry can
// distinguish a fallback from a targeting match.
func SelectVariant(variants []ConfigVariant, ctx Context) (VariantResult, error) {
	fields, err := Flatten(ctx)
	if err != nil {
		return VariantResult{}, err
	}

	missing := newFieldSet()
	for _, variant := range variants {
		match, err := Match(variant.Filter, fields)
		if err != nil {
			return VariantResult{}, err
		}
		missing.addAll(match.MissingFields)
		if match.Matched {
			return VariantResult{
				Key:           variant.Key,
				Payload:       variant.Payload,
				Reason:        ReasonTargetingMatch,
				MissingFields: missing.ordered,
			}, nil
		}
	}

	for _, variant := range variants {
		if variant.Default {
			return VariantResult{
				Key:           variant.Key,
				Payload:       variant.Payload,
				Reason:        ReasonDefault,
				MissingFields: missing.ordered,
			}, nil
		}
	}

	return VariantResult{Reason: ReasonNoMatch, MissingFields: missing.ordered}, nil
}
