package core

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestSelectVariant(t *testing.T) {
	payloadA := json.RawMessage(`{"limit":10}`)
	payloadB := json.RawMessage(`{"limit":100}`)

	tests := []struct {
		name       string
		variants   []ConfigVariant
		ctx        Context
		wantKey    string
		wantReason Reason
	}{
		{
			name: "first matching variant wins",
			variants: []ConfigVariant{
				{Key: "small", Filter: contextFilter("company.plan", OperatorIs, "free"), Payload: payloadA},
				{Key: "large", Filter: constantFilter(true), Payload: payloadB},
			},
			ctx:        Context{Company: map[string]any{"plan": "free"}},
			wantKey:    "small",
			wantReason: ReasonTargetingMatch,
		},
		{
			name: "default variant on no targeting match",
			variants: []ConfigVariant{
				{Key: "v1", Filter: constantFilter(false)},
				{Key: "v2", Filter: constantFilter(false), Default: true, Payload: payloadB},
			},
			wantKey:    "v2",
			wantReason: ReasonDefault,
		},
		{
			name: "no match and no default means no configuration",
			variants: []ConfigVariant{
				{Key: "v1", Filter: constantFilter(false)},
			},
			wantKey:    "",
			wantReason: ReasonNoMatch,
		},
		{
			name:       "empty variant list",
			variants:   nil,
			wantKey:    "",
			wantReason: ReasonNoMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectVariant(tt.variants, tt.ctx)
			if err != nil {
				t.Fatalf("SelectVariant: %v", err)
			}
			if got.Key != tt.wantKey {
				t.Errorf("Key = %q, want %q", got.Key, tt.wantKey)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestSelectVariantAggregatesMissingFields(t *testing.T) {
	variants := []ConfigVariant{
		{Key: "v1", Filter: contextFilter("user.email", OperatorIs, "a@b.c")},
		{Key: "v2", Filter: contextFilter("company.plan", OperatorIs, "pro")},
		{Key: "fallback", Filter: constantFilter(false), Default: true},
	}

	got, err := SelectVariant(variants, Context{})
	if err != nil {
		t.Fatalf("SelectVariant: %v", err)
	}
	if got.Key != "fallback" || got.Reason != ReasonDefault {
		t.Fatalf("got %q (%s), want fallback (DEFAULT)", got.Key, got.Reason)
	}
	want := []string{"user.email", "company.plan"}
	if !reflect.DeepEqual(got.MissingFields, want) {
		t.Errorf("MissingFields = %v, want %v", got.MissingFields, want)
	}
}

func TestSelectVariantPayloadPassthrough(t *testing.T) {
	payload := json.RawMessage(`{"color":"teal","retries":3}`)
	variants := []ConfigVariant{
		{Key: "teal", Filter: constantFilter(true), Payload: payload},
	}

	got, err := SelectVariant(variants, Context{})
	if err != nil {
		t.Fatalf("SelectVariant: %v", err)
	}
	if string(got.Payload) != string(payload) {
		t.Errorf("Payload = %s, want %s", got.Payload, payload)
	}
}
