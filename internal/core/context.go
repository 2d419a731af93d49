package core

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// Context carries the attributes a flag is evaluated against, grouped into
// the three namespaces the Kestrel API understands. Attribute values must be
// strings, booleans, or numbers; anything else is rejected at flatten time.
type Context struct {
	User    map[string]any
	Company map[string]any
	Other   map[string]any
}

// ErrInvalidAttribute is returned when a context attribute has an unsupported
// value type.
var ErrInvalidAttribute = errors.New("invalid context attribute")

// Fields is a flattened, dot-namespaced view of a Context
// ("user.id", "company.plan", ...). Lookups go through Get so that an
// optional access callback can observe which fields targeting actually read.
type Fields struct {
	values   map[string]string
	onAccess func(key string)
}

// Flatten converts a Context into its flattened field view. Attribute values
// are stringified; nil values are skipped; unsupported types fail fast.
func Flatten(ctx Context) (Fields, error) {
	values := make(map[string]string)
	for prefix, attrs := range map[string]map[string]any{
		"user":    ctx.User,
		"company": ctx.Company,
		"other":   ctx.Other,
	} {
		for name, value := range attrs {
			if value == nil {
				continue
			}
			s, err := stringify(value)
			if err != nil {
				return Fields{}, fmt.Errorf("%w: %s.%s: %v", ErrInvalidAttribute, prefix, name, err)
			}
			values[prefix+"."+name] = s
		}
	}
	return Fields{values: values}, nil
}

// WithAccessFunc returns a copy of f that invokes fn with the field key on
// every Get, hit or miss.
func (f Fields) WithAccessFunc(fn func(key string)) Fields {
	f.onAccess = fn
	return f
}

// Get looks up a flattened field by its dot-joined key.
func (f Fields) Get(key string) (string, bool) {
	if f.onAccess != nil {
		f.onAccess(key)
	}
	value, ok := f.values[key]
	return value, ok
}

// Keys returns the flattened field keys in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f.values))
	for key := range f.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func stringify(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported type %T", value)
	}
}
