package core

import (
	"encoding/json"
	"testing"
)

func FuzzMatch(f *testing.F) {
	f.Add(`{"type":"context","field":"user.id","operator":"IS","values":["u1"]}`, "u1")
	f.Add(`{"type":"group","operator":"and","filters":[{"type":"constant","value":true}]}`, "")
	f.Add(`{"type":"rolloutPercentage","key":"f","partialRolloutAttribute":"user.id","partialRolloutThreshold":0.5}`, "u2")
	f.Add(`{"type":"bogus"}`, "x")

	f.Fuzz(func(t *testing.T, filterJSON, userID string) {
		var filter Filter
		if err := json.Unmarshal([]byte(filterJSON), &filter); err != nil {
			t.Skip()
		}

		fields, err := Flatten(Context{User: map[string]any{"id": userID}})
		if err != nil {
			t.Fatalf("Flatten: %v", err)
		}

		// Arbitrary filter trees must either match cleanly or fail with an
		// error; they must never panic, and the result must be stable.
		first, err := Match(filter, fields)
		again, err2 := Match(filter, fields)
		if (err == nil) != (err2 == nil) {
			t.Fatalf("error not deterministic: %v vs %v", err, err2)
		}
		if err == nil && first.Matched != again.Matched {
			t.Fatalf("match not deterministic for %s", filterJSON)
		}
	})
}
