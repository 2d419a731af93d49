package core

import (
	"fmt"
	"testing"
)

func BenchmarkEvaluate_SingleRule(b *testing.B) {
	flag := FlagDefinition{Key: "bench", Rules: []Rule{
		{Filter: contextFilter("company.id", OperatorIs, "c1")},
	}}
	ctx := Context{Company: map[string]any{"id": "c1"}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Evaluate(flag, ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEvaluate_NestedGroups(b *testing.B) {
	flag := FlagDefinition{Key: "bench", Rules: []Rule{
		{Filter: Filter{Type: FilterTypeGroup, Operator: GroupAnd, Filters: []Filter{
			contextFilter("company.plan", OperatorAnyOf, "pro", "enterprise"),
			{Type: FilterTypeGroup, Operator: GroupOr, Filters: []Filter{
				contextFilter("user.beta", OperatorIs, "true"),
				{Type: FilterTypeRollout, Key: "bench", PartialRolloutAttribute: "user.id", PartialRolloutThreshold: 0.5},
			}},
		}}},
	}}
	ctx := Context{
		User:    map[string]any{"id": "u-1234", "beta": false},
		Company: map[string]any{"plan": "pro"},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Evaluate(flag, ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEvaluate_ManyRules(b *testing.B) {
	rules := make([]Rule, 20)
	for i := range rules {
		rules[i] = Rule{Filter: contextFilter(fmt.Sprintf("other.attr-%d", i), OperatorIs, "x")}
	}
	flag := FlagDefinition{Key: "bench", Rules: rules}
	ctx := Context{Other: map[string]any{"attr-10": "x"}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Evaluate(flag, ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkInRollout(b *testing.B) {
	for i := 0; i < b.N; i++ {
		InRollout("bench-flag", "user-123456", 0.5)
	}
}
