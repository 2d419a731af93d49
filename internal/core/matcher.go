package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnknownFilterType is returned for a filter whose type discriminator
	// is not one of the known variants.
	ErrUnknownFilterType = errors.New("unknown filter type")

	// ErrUnknownOperator is returned for a context or group filter with an
	// operator outside the supported set.
	ErrUnknownOperator = errors.New("unknown operator")
)

// MatchResult is the outcome of matching a single filter tree.
type MatchResult struct {
	// Matched reports whether the filter matched the context.
	Matched bool

	// MissingFields lists, in first-seen order, every field referenced by the
	// filter tree that was absent from the context. Group filters aggregate
	// missing fields from all children, even children that could have been
	// skipped by boolean short-circuit; targeting telemetry needs the full
	// picture of what data was unavailable.
	MissingFields []string
}

// Match evaluates filter against the flattened context fields. It is a pure
// function: identical inputs always produce identical results. Structural
// problems (unknown filter type or operator) are reported as errors; absent
// context fields are not errors, they fail closed and are recorded in
// MissingFields.
func Match(filter Filter, fields Fields) (MatchResult, error) {
	missing := newFieldSet()
	matched, err := match(filter, fields, missing)
	if err != nil {
		return MatchResult{}, err
	}
	return MatchResult{Matched: matched, MissingFields: missing.ordered}, nil
}

func match(filter Filter, fields Fields, missing *fieldSet) (bool, error) {
	switch filter.Type {
	case FilterTypeContext:
		return matchContext(filter, fields, missing)
	case FilterTypeGroup:
		return matchGroup(filter, fields, missing)
	case FilterTypeRollout:
		value, ok := fields.Get(filter.PartialRolloutAttribute)
		if !ok {
			missing.add(filter.PartialRolloutAttribute)
			return false, nil
		}
		return InRollout(filter.Key, value, filter.PartialRolloutThreshold), nil
	case FilterTypeConstant:
		return filter.Value, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownFilterType, filter.Type)
	}
}

func matchGroup(filter Filter, fields Fields, missing *fieldSet) (bool, error) {
	if filter.Operator != GroupAnd && filter.Operator != GroupOr {
		return false, fmt.Errorf("%w: group %q", ErrUnknownOperator, filter.Operator)
	}

	// Every child is evaluated even once the group outcome is decided, so
	// that MissingFields covers the whole subtree.
	matched := filter.Operator == GroupAnd
	for _, child := range filter.Filters {
		childMatched, err := match(child, fields, missing)
		if err != nil {
			return false, err
		}
		if filter.Operator == GroupAnd {
			matched = matched && childMatched
		} else {
			matched = matched || childMatched
		}
	}
	return matched, nil
}

func matchContext(filter Filter, fields Fields, missing *fieldSet) (bool, error) {
	value, present := fields.Get(filter.Field)
	if !present {
		missing.add(filter.Field)
	}

	switch filter.Operator {
	case OperatorSet:
		return present && value != "", nil
	case OperatorNotSet:
		return !present || value == "", nil
	case OperatorIs:
		return present && len(filter.Values) > 0 && value == filter.Values[0], nil
	case OperatorIsNot:
		return !present || len(filter.Values) == 0 || value != filter.Values[0], nil
	case OperatorAnyOf:
		return present && containsString(filter.Values, value), nil
	case OperatorNotAnyOf:
		return !present || !containsString(filter.Values, value), nil
	case OperatorContains:
		return present && len(filter.Values) > 0 && strings.Contains(value, filter.Values[0]), nil
	case OperatorNotContains:
		return !present || len(filter.Values) == 0 || !strings.Contains(value, filter.Values[0]), nil
	case OperatorGreaterThan:
		return present && len(filter.Values) > 0 && compare(value, filter.Values[0]) > 0, nil
	case OperatorLessThan:
		return present && len(filter.Values) > 0 && compare(value, filter.Values[0]) < 0, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, filter.Operator)
	}
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// compare orders two attribute values numerically when both parse as numbers,
// lexicographically otherwise.
func compare(left, right string) int {
	l, lerr := strconv.ParseFloat(left, 64)
	r, rerr := strconv.ParseFloat(right, 64)
	if lerr == nil && rerr == nil {
		switch {
		case l < r:
			return -1
		case l > r:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(left, right)
}

// fieldSet is an insertion-ordered string set used to deduplicate missing
// field names.
type fieldSet struct {
	seen    map[string]struct{}
	ordered []string
}

func newFieldSet() *fieldSet {
	return &fieldSet{seen: make(map[string]struct{})}
}

func (s *fieldSet) add(field string) {
	if _, ok := s.seen[field]; ok {
		return
	}
	s.seen[field] = struct{}{}
	s.ordered = append(s.ordered, field)
}

func (s *fieldSet) addAll(fields []string) {
	for _, field := range fields {
		s.add(field)
	}
}
