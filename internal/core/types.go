// Package core implements the Kestrel targeting evaluation engine: rule
// filter matching, deterministic percentage rollout, rule evaluation, and
// remote-config variant selection.
//
// Everything in this package is pure and synchronous. Network access, caching,
// and telemetry delivery belong to the surrounding packages.
package core

import "encoding/json"

// FilterType discriminates the RuleFilter variants.
type FilterType string

const (
	FilterTypeContext  FilterType = "context"
	FilterTypeGroup    FilterType = "group"
	FilterTypeRollout  FilterType = "rolloutPercentage"
	FilterTypeConstant FilterType = "constant"
)

// Operator is a comparison operator in a context filter, or the combinator
// ("and"/"or") in a group filter.
type Operator string

const (
	OperatorIs          Operator = "IS"
	OperatorIsNot       Operator = "IS_NOT"
	OperatorAnyOf       Operator = "ANY_OF"
	OperatorNotAnyOf    Operator = "NOT_ANY_OF"
	OperatorContains    Operator = "CONTAINS"
	OperatorNotContains Operator = "NOT_CONTAINS"
	OperatorGreaterThan Operator = "GT"
	OperatorLessThan    Operator = "LT"
	OperatorSet         Operator = "SET"
	OperatorNotSet      Operator = "NOT_SET"

	GroupAnd Operator = "and"
	GroupOr  Operator = "or"
)

// Filter is a targeting predicate. The Type field selects which of the
// remaining fields are meaningful:
//
//   - context: Field, Operator, Values
//   - group: Operator (and/or), Filters
//   - rolloutPercentage: Key, PartialRolloutAttribute, PartialRolloutThreshold
//   - constant: Value
//
// Filters form a finite tree; construction from JSON cannot produce cycles.
type Filter struct {
	Type FilterType `json:"type"`

	Field    string   `json:"field,omitempty"`
	Operator Operator `json:"operator,omitempty"`
	Values   []string `json:"values,omitempty"`

	Filters []Filter `json:"filters,omitempty"`

	Key                     string  `json:"key,omitempty"`
	PartialRolloutAttribute string  `json:"partialRolloutAttribute,omitempty"`
	PartialRolloutThreshold float64 `json:"partialRolloutThreshold,omitempty"`

	Value bool `json:"value,omitempty"`
}

// Rule is a single targeting rule of a flag.
type Rule struct {
	Filter Filter `json:"filter"`
}

// ConfigVariant is one candidate remote-config payload for a flag. At most
// one variant per flag should be marked Default.
type ConfigVariant struct {
	Key     string          `json:"key"`
	Filter  Filter          `json:"filter"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Default bool            `json:"default,omitempty"`
}

// FlagDefinition is the rule set for a single flag. Rules are evaluated in
// order; the first match wins and a flag with no matching rule is disabled.
type FlagDefinition struct {
	Key              string          `json:"key"`
	TargetingVersion int             `json:"targetingVersion"`
	Rules            []Rule          `json:"rules,omitempty"`
	Variants         []ConfigVariant `json:"variants,omitempty"`
}

// Reason explains how a flag or variant outcome was produced.
type Reason string

const (
	ReasonTargetingMatch Reason = "TARGETING_MATCH"
	ReasonDefault        Reason = "DEFAULT"
	ReasonNoMatch        Reason = "NO_MATCH"
	ReasonError          Reason = "ERROR"
)

// DefinitionSet is an immutable snapshot of all flag definitions known to the
// client. It is replaced wholesale on refresh and must not be mutated after
// construction.
type DefinitionSet struct {
	flags map[string]FlagDefinition
	keys  []string
}

// NewDefinitionSet builds a snapshot from a list of definitions. Later
// duplicates of a key replace earlier ones.
func NewDefinitionSet(flags []FlagDefinition) DefinitionSet {
	set := DefinitionSet{flags: make(map[string]FlagDefinition, len(flags))}
	for _, flag := range flags {
		if _, seen := set.flags[flag.Key]; !seen {
			set.keys = append(set.keys, flag.Key)
		}
		set.flags[flag.Key] = flag
	}
	return set
}

// Flag returns the definition for key, if present.
func (s DefinitionSet) Flag(key string) (FlagDefinition, bool) {
	flag, ok := s.flags[key]
	return flag, ok
}

// Keys returns flag keys in the order they were first seen.
func (s DefinitionSet) Keys() []string {
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	return keys
}

// Len reports the number of flags in the snapshot.
func (s DefinitionSet) Len() int {
	return len(s.flags)
}
