package rules

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Operator is a condition comparison operator.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpContains Operator = "contains"
	OpIn       Operator = "in"
)

// Valid returns true when the operator is supported.
func (o Operator) Valid() bool {
	switch o {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpContains, OpIn:
		return true
	default:
		return false
	}
}

type valueKind int

const (
	kindString valueKind = iota
	kindNumber
	kindBool
	kindList
)

// FieldValue is a tagged value for rule conditions. Signal payloads are
// loosely typed JSON; the tagged representation rejects unsupported
// shapes at parse time instead of coercing silently.
type FieldValue struct {
	kind valueKind
	str  string
	num  float64
	b    bool
	list []string
}

// StringVal builds a string field value.
func StringVal(v string) FieldValue { return FieldValue{kind: kindString, str: v} }

// NumberVal builds a numeric field value.
func NumberVal(v float64) FieldValue { return FieldValue{kind: kindNumber, num: v} }

// BoolVal builds a boolean field value.
func BoolVal(v bool) FieldValue { return FieldValue{kind: kindBool, b: v} }

// ListVal builds a list-of-strings field value.
func ListVal(v ...string) FieldValue {
	return FieldValue{kind: kindList, list: append([]string(nil), v...)}
}

// FieldValueOf converts a loosely typed signal field into a FieldValue.
func FieldValueOf(v any) (FieldValue, error) {
	switch value := v.(type) {
	case string:
		return StringVal(value), nil
	case bool:
		return BoolVal(value), nil
	case float64:
		return NumberVal(value), nil
	case float32:
		return NumberVal(float64(value)), nil
	case int:
		return NumberVal(float64(value)), nil
	case int32:
		return NumberVal(float64(value)), nil
	case int64:
		return NumberVal(float64(value)), nil
	case json.Number:
		parsed, err := value.Float64()
		if err != nil {
			return FieldValue{}, &ValidationError{Field: "value", Reason: "invalid number: " + value.String()}
		}
		return NumberVal(parsed), nil
	case []string:
		return ListVal(value...), nil
	case []any:
		items := make([]string, 0, len(value))
		for _, item := range value {
			s, ok := item.(string)
			if !ok {
				return FieldValue{}, &ValidationError{Field: "value", Reason: "list items must be strings"}
			}
			items = append(items, s)
		}
		return ListVal(items...), nil
	case nil:
		return FieldValue{}, &ValidationError{Field: "value", Reason: "null is not a valid condition value"}
	default:
		return FieldValue{}, &ValidationError{Field: "value", Reason: fmt.Sprintf("unsupported type %T", v)}
	}
}

// MarshalJSON writes the underlying value without the tag.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindNumber:
		return json.Marshal(v.num)
	case kindBool:
		return json.Marshal(v.b)
	case kindList:
		return json.Marshal(v.list)
	default:
		return json.Marshal(v.str)
	}
}

// UnmarshalJSON reads a string, number, bool or string array.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FieldValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Condition is a single field predicate. All conditions of a rule must
// hold for the rule to fire.
type Condition struct {
	Field    string     `json:"field"`
	Operator Operator   `json:"operator"`
	Value    FieldValue `json:"value"`
}

// Validate checks the condition shape.
func (c Condition) Validate() error {
	if c.Field == "" {
		return &ValidationError{Field: "field", Reason: "required"}
	}
	if !c.Operator.Valid() {
		return &ValidationError{Field: "operator", Reason: "unknown operator " + string(c.Operator)}
	}
	if c.Operator == OpIn && c.Value.kind != kindList {
		return &ValidationError{Field: "value", Reason: "in operator requires a list value"}
	}
	switch c.Operator {
	case OpGt, OpGte, OpLt, OpLte:
		if c.Value.kind != kindNumber {
			return &ValidationError{Field: "value", Reason: string(c.Operator) + " operator requires a numeric value"}
		}
	}
	return nil
}

// Eval evaluates the condition against signal fields. A missing field or
// a type mismatch is an evaluation error, never a silent false.
func (c Condition) Eval(fields map[string]any) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}
	raw, ok := fields[c.Field]
	if !ok {
		return false, &ValidationError{Field: c.Field, Reason: "field not present in signal"}
	}
	actual, err := FieldValueOf(raw)
	if err != nil {
		return false, err
	}

	switch c.Operator {
	case OpEq:
		return actual.equals(c.Value), nil
	case OpNeq:
		return !actual.equals(c.Value), nil
	case OpGt, OpGte, OpLt, OpLte:
		if actual.kind != kindNumber {
			return false, &ValidationError{Field: c.Field, Reason: "numeric comparison against non-numeric field"}
		}
		return compareNumbers(c.Operator, actual.num, c.Value.num), nil
	case OpContains:
		return actual.contains(c.Value)
	case OpIn:
		return c.Value.hasMember(actual)
	default:
		return false, &ValidationError{Field: c.Field, Reason: "unknown operator " + string(c.Operator)}
	}
}

func (v FieldValue) equals(other FieldValue) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case kindNumber:
		return v.num == other.num
	case kindBool:
		return v.b == other.b
	case kindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != other.list[i] {
				return false
			}
		}
		return true
	default:
		return v.str == other.str
	}
}

func (v FieldValue) contains(needle FieldValue) (bool, error) {
	switch v.kind {
	case kindString:
		if needle.kind != kindString {
			return false, &ValidationError{Field: "value", Reason: "contains on a string field requires a string value"}
		}
		return strings.Contains(strings.ToLower(v.str), strings.ToLower(needle.str)), nil
	case kindList:
		if needle.kind != kindString {
			return false, &ValidationError{Field: "value", Reason: "contains on a list field requires a string value"}
		}
		for _, item := range v.list {
			if strings.EqualFold(item, needle.str) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, &ValidationError{Field: "value", Reason: "contains requires a string or list field"}
	}
}

func (v FieldValue) hasMember(member FieldValue) (bool, error) {
	if v.kind != kindList {
		return false, &ValidationError{Field: "value", Reason: "in operator requires a list value"}
	}
	if member.kind != kindString {
		return false, &ValidationError{Field: "value", Reason: "in operator matches string fields only"}
	}
	for _, item := range v.list {
		if strings.EqualFold(item, member.str) {
			return true, nil
		}
	}
	return false, nil
}

func compareNumbers(op Operator, left, right float64) bool {
	switch op {
	case OpGt:
		return left > right
	case OpGte:
		return left >= right
	case OpLt:
		return left < right
	case OpLte:
		return left <= right
	default:
		return false
	}
}
