package condition

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Operator is the comparison applied between a snapshot field and the
// condition's literal value.
type Operator string

const (
	OperatorEquals      Operator = "EQUALS"
	OperatorNotEquals   Operator = "NOT_EQUALS"
	OperatorIn          Operator = "IN"
	OperatorGreaterThan Operator = "GREATER_THAN"
	OperatorLessThan    Operator = "LESS_THAN"
	OperatorContains    Operator = "CONTAINS"
)

// KnownOperator reports whether op is part of the closed operator set.
// Rule validation rejects anything else at save time.
func KnownOperator(op Operator) bool {
	switch op {
	case OperatorEquals, OperatorNotEquals, OperatorIn,
		OperatorGreaterThan, OperatorLessThan, OperatorContains:
		return true
	}
	return false
}

// Condition is a single predicate over a snapshot field.
type Condition struct {
	Field    string      `json:"field" bson:"field"`
	Operator Operator    `json:"operator" bson:"operator"`
	Value    interface{} `json:"value" bson:"value"`
}

// Matches evaluates all conditions against the snapshot and combines them
// with logical AND. An empty condition list matches unconditionally. A
// condition whose field path cannot be resolved, or whose value types do
// not admit the requested comparison, evaluates to false (fail-closed).
func Matches(conditions []Condition, snapshot map[string]interface{}) bool {
	for _, cond := range conditions {
		if !evaluate(cond, snapshot) {
			return false
		}
	}
	return true
}

func evaluate(cond Condition, snapshot map[string]interface{}) bool {
	val, ok := Resolve(snapshot, cond.Field)
	if !ok {
		return false
	}

	switch cond.Operator {
	case OperatorEquals:
		return equals(val, cond.Value)

	case OperatorNotEquals:
		return !equals(val, cond.Value)

	case OperatorIn:
		for _, candidate := range toSlice(cond.Value) {
			if equals(val, candidate) {
				return true
			}
		}
		return false

	case OperatorGreaterThan:
		a, okA := toFloat(val)
		b, okB := toFloat(cond.Value)
		return okA && okB && a > b

	case OperatorLessThan:
		a, okA := toFloat(val)
		b, okB := toFloat(cond.Value)
		return okA && okB && a < b

	case OperatorContains:
		// Membership for slice-valued fields (tags), substring otherwise.
		if items := toSlice(val); items != nil {
			for _, item := range items {
				if equals(item, cond.Value) {
					return true
				}
			}
			return false
		}
		return strings.Contains(asString(val), asString(cond.Value))

	default:
		return false
	}
}

// Resolve walks a dotted field path (e.g. "order.totalAmount") through
// nested maps. The second return is false when any segment is missing or
// an intermediate value is not a map.
func Resolve(snapshot map[string]interface{}, path string) (interface{}, bool) {
	segments := strings.Split(path, ".")
	var current interface{} = snapshot
	for _, seg := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// equals compares numerically when both sides are numbers, otherwise by
// string rendering, which keeps enum-ish values ("high" etc.) comparable
// regardless of where the snapshot came from.
func equals(a, b interface{}) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	return asString(a) == asString(b)
}

func asString(v interface{}) string {
	return fmt.Sprintf("%v", v)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toSlice(v interface{}) []interface{} {
	switch s := v.(type) {
	case []interface{}:
		return s
	case primitive.A:
		return []interface{}(s)
	case []string:
		out := make([]interface{}, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out
	}
	return nil
}
