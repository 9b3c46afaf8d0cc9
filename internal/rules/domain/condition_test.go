package rules

import "testing"

func TestConditionEval_Operators(t *testing.T) {
	fields := map[string]any{
		"status":   "overdue",
		"amount":   float64(150),
		"urgent":   true,
		"assignee": "user-7",
		"labels":   []any{"billing", "Critical"},
	}

	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"eq string match", Condition{Field: "status", Operator: OpEq, Value: StringVal("overdue")}, true},
		{"eq string mismatch", Condition{Field: "status", Operator: OpEq, Value: StringVal("open")}, false},
		{"neq", Condition{Field: "status", Operator: OpNeq, Value: StringVal("open")}, true},
		{"eq bool", Condition{Field: "urgent", Operator: OpEq, Value: BoolVal(true)}, true},
		{"gt true", Condition{Field: "amount", Operator: OpGt, Value: NumberVal(100)}, true},
		{"gt false on equal", Condition{Field: "amount", Operator: OpGt, Value: NumberVal(150)}, false},
		{"gte on equal", Condition{Field: "amount", Operator: OpGte, Value: NumberVal(150)}, true},
		{"lt", Condition{Field: "amount", Operator: OpLt, Value: NumberVal(200)}, true},
		{"lte", Condition{Field: "amount", Operator: OpLte, Value: NumberVal(150)}, true},
		{"contains substring case-insensitive", Condition{Field: "status", Operator: OpContains, Value: StringVal("DUE")}, true},
		{"contains list member", Condition{Field: "labels", Operator: OpContains, Value: StringVal("critical")}, true},
		{"contains list miss", Condition{Field: "labels", Operator: OpContains, Value: StringVal("network")}, false},
		{"in match", Condition{Field: "assignee", Operator: OpIn, Value: ListVal("user-3", "user-7")}, true},
		{"in miss", Condition{Field: "assignee", Operator: OpIn, Value: ListVal("user-3")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.cond.Eval(fields)
			if err != nil {
				t.Fatalf("eval error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConditionEval_Errors(t *testing.T) {
	fields := map[string]any{
		"status": "open",
		"amount": float64(10),
	}

	cases := []struct {
		name string
		cond Condition
	}{
		{"missing field", Condition{Field: "missing", Operator: OpEq, Value: StringVal("x")}},
		{"numeric op on string field", Condition{Field: "status", Operator: OpGt, Value: NumberVal(1)}},
		{"numeric op with string value", Condition{Field: "amount", Operator: OpGt, Value: StringVal("ten")}},
		{"in with non-list value", Condition{Field: "status", Operator: OpIn, Value: StringVal("open")}},
		{"unknown operator", Condition{Field: "status", Operator: Operator("matches"), Value: StringVal("x")}},
		{"empty field name", Condition{Operator: OpEq, Value: StringVal("x")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.cond.Eval(fields); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestConditionEval_NullField(t *testing.T) {
	cond := Condition{Field: "value", Operator: OpEq, Value: StringVal("x")}
	if _, err := cond.Eval(map[string]any{"value": nil}); err == nil {
		t.Fatal("expected error for null field value")
	}
}

func TestFieldValueJSONRoundTrip(t *testing.T) {
	cond := Condition{Field: "labels", Operator: OpIn, Value: ListVal("a", "b")}
	if err := cond.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	var parsed FieldValue
	if err := parsed.UnmarshalJSON([]byte(`42.5`)); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if !parsed.equals(NumberVal(42.5)) {
		t.Fatal("number round trip mismatch")
	}
	if err := parsed.UnmarshalJSON([]byte(`{"nested":true}`)); err == nil {
		t.Fatal("expected error for object value")
	}
}
