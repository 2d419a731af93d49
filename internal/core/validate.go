package core

import (
	"errors"
	"fmt"
	"strings"
)

var contextOperators = map[Operator]struct{}{
	OperatorIs:          {},
	OperatorIsNot:       {},
	OperatorAnyOf:       {},
	OperatorNotAnyOf:    {},
	OperatorContains:    {},
	OperatorNotContains: {},
	OperatorGreaterThan: {},
	OperatorLessThan:    {},
	OperatorSet:         {},
	OperatorNotSet:      {},
}

// ValidateFilter checks a filter tree for structural problems: unknown
// discriminators, unknown operators, empty field names, and out-of-range
// rollout thresholds. It exists so malformed definitions are rejected at the
// decode boundary instead of surfacing mid-evaluation.
func ValidateFilter(filter Filter) error {
	switch filter.Type {
	case FilterTypeContext:
		if strings.TrimSpace(filter.Field) == "" {
			return errors.New("context filter: field is required")
		}
		if _, ok := contextOperators[filter.Operator]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownOperator, filter.Operator)
		}
		return nil
	case FilterTypeGroup:
		if filter.Operator != GroupAnd && filter.Operator != GroupOr {
			return fmt.Errorf("%w: group %q", ErrUnknownOperator, filter.Operator)
		}
		for i, child := range filter.Filters {
			if err := ValidateFilter(child); err != nil {
				return fmt.Errorf("group filter %d: %w", i, err)
			}
		}
		return nil
	case FilterTypeRollout:
		if strings.TrimSpace(filter.PartialRolloutAttribute) == "" {
			return errors.New("rollout filter: partialRolloutAttribute is required")
		}
		if filter.PartialRolloutThreshold < 0 || filter.PartialRolloutThreshold > 1 {
			return fmt.Errorf("rollout filter: threshold %v outside [0,1]", filter.PartialRolloutThreshold)
		}
		return nil
	case FilterTypeConstant:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFilterType, filter.Type)
	}
}

// ValidateFlag checks a flag definition and all of its rules and variants.
func ValidateFlag(flag FlagDefinition) error {
	if strings.TrimSpace(flag.Key) == "" {
		return errors.New("flag key is required")
	}
	for i, rule := range flag.Rules {
		if err := ValidateFilter(rule.Filter); err != nil {
			return fmt.Errorf("flag %q rule %d: %w", flag.Key, i, err)
		}
	}
	defaults := 0
	for i, variant := range flag.Variants {
		if strings.TrimSpace(variant.Key) == "" {
			return fmt.Errorf("flag %q variant %d: key is required", flag.Key, i)
		}
		if err := ValidateFilter(variant.Filter); err != nil {
			return fmt.Errorf("flag %q variant %q: %w", flag.Key, variant.Key, err)
		}
		if variant.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return fmt.Errorf("flag %q: %d variants marked default, want at most one", flag.Key, defaults)
	}
	return nil
}
