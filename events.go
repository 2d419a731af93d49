package kestrel

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/kestrelhq/kestrel-go/internal/buffer"
	"github.com/kestrelhq/kestrel-go/internal/core"
)

// Telemetry event payloads. Shapes mirror what the Kestrel event sink
// expects; IDs and timestamps are stamped by the buffer at enqueue time.

func evaluateEvent(flag FlagDefinition, res EvaluationResult, variant VariantResult) buffer.Event {
	attrs := map[string]any{
		"flagKey":          flag.Key,
		"targetingVersion": flag.TargetingVersion,
		"value":            res.Value,
		"ruleResults":      res.RuleResults,
		"context":          contextAttributes(res.Context),
	}
	if len(res.MissingFields) > 0 {
		attrs["missingFields"] = res.MissingFields
	}
	if variant.Key != "" || variant.Reason == ReasonDefault {
		attrs["variantKey"] = variant.Key
		attrs["variantReason"] = string(variant.Reason)
	}
	return buffer.Event{Type: buffer.EventEvaluate, Attributes: attrs}
}

func checkEvent(flag FlagDefinition, value bool) buffer.Event {
	return buffer.Event{Type: buffer.EventCheck, Attributes: map[string]any{
		"flagKey":          flag.Key,
		"targetingVersion": flag.TargetingVersion,
		"value":            value,
	}}
}

func trackEvent(name string, attrs map[string]any, ctx Context) buffer.Event {
	return buffer.Event{Type: buffer.EventTrack, Attributes: map[string]any{
		"event":      name,
		"attributes": attrs,
		"context":    contextAttributes(ctx),
	}}
}

func userEvent(userID string, attrs map[string]any) buffer.Event {
	return buffer.Event{Type: buffer.EventUser, Attributes: map[string]any{
		"userId":     userID,
		"attributes": attrs,
	}}
}

func companyEvent(companyID string, attrs map[string]any) buffer.Event {
	return buffer.Event{Type: buffer.EventCompany, Attributes: map[string]any{
		"companyId":  companyID,
		"attributes": attrs,
	}}
}

func contextAttributes(ctx Context) map[string]any {
	out := make(map[string]any, 3)
	if len(ctx.User) > 0 {
		out["user"] = ctx.User
	}
	if len(ctx.Company) > 0 {
		out["company"] = ctx.Company
	}
	if len(ctx.Other) > 0 {
		out["other"] = ctx.Other
	}
	return out
}

// fingerprint identifies a (kind, flag, context) triple for telemetry rate
// limiting: the same flag evaluated against the same context repeatedly is
// reported once per budget window, not once per call.
func fingerprint(kind, flagKey string, ctx Context) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(flagKey))
	if fields, err := core.Flatten(ctx); err == nil {
		for _, key := range fields.Keys() {
			value, _ := fields.Get(key)
			h.Write([]byte{0})
			h.Write([]byte(key))
			h.Write([]byte{'='})
			h.Write([]byte(value))
		}
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
