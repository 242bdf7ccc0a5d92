// Package features turns task records into typed feature vectors and encodes
// categorical values with encoders fit at training time.
package features

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind declares how a feature is interpreted by the model.
type Kind int

// Feature kinds.
const (
	Numeric Kind = iota
	Categorical
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	if k != Numeric && k != Categorical {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "numeric":
		*k = Numeric
	case "categorical":
		*k = Categorical
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, string(b))
	}
	return nil
}

// Value is a single typed feature value.
type Value struct {
	Kind Kind
	Num  float64
	Cat  string
}

// Num builds a numeric value.
func Num(v float64) Value { return Value{Kind: Numeric, Num: v} }

// Cat builds a categorical value.
func Cat(s string) Value { return Value{Kind: Categorical, Cat: s} }

// Interface returns the value as float64 or string.
func (v Value) Interface() any {
	if v.Kind == Categorical {
		return v.Cat
	}
	return v.Num
}

// MarshalJSON writes numeric values as numbers and categorical values as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON accepts a number, a string or a boolean.
func (v *Value) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromAny converts a loosely typed input into a Value.
// Numbers and booleans become numeric, strings categorical.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case float64:
		return checkedNum(t)
	case float32:
		return checkedNum(float64(t))
	case int:
		return Num(float64(t)), nil
	case int32:
		return Num(float64(t)), nil
	case int64:
		return Num(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q", ErrInvalidValue, t.String())
		}
		return checkedNum(f)
	case bool:
		if t {
			return Num(1), nil
		}
		return Num(0), nil
	case string:
		return Cat(t), nil
	case Value:
		return t, nil
	}
	return Value{}, fmt.Errorf("%w: %T", ErrInvalidValue, x)
}

func checkedNum(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("%w: %v", ErrInvalidValue, f)
	}
	return Num(f), nil
}

// Vector maps feature names to typed values.
type Vector map[string]Value

// FromMap converts a loosely typed feature map into a Vector.
func FromMap(m map[string]any) (Vector, error) {
	v := make(Vector, len(m))
	for name, raw := range m {
		val, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("feature %q: %w", name, err)
		}
		v[name] = val
	}
	return v, nil
}

// Map returns the vector as plain values.
func (v Vector) Map() map[string]any {
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = val.Interface()
	}
	return out
}

// Clone returns a copy of v.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Field is a named, typed slot of a schema.
type Field struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Schema is an ordered list of fields.
type Schema []Field

// Names returns the field names in schema order.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, f := range s {
		out[i] = f.Name
	}
	return out
}

// Lookup returns the field called name.
func (s Schema) Lookup(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks that every key of v is declared and carries the declared kind.
func (s Schema) Validate(v Vector) error {
	for name, val := range v {
		f, ok := s.Lookup(name)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownFeature, name)
		}
		if f.Kind != val.Kind {
			return fmt.Errorf("%w: %q is %s, declared %s", ErrKindMismatch, name, val.Kind, f.Kind)
		}
	}
	return nil
}

// Project keeps only the keys of v that the schema declares with a matching kind.
// It returns the projected vector and the names it dropped.
func (s Schema) Project(v Vector) (Vector, []string) {
	out := make(Vector, len(v))
	var dropped []string
	for name, val := range v {
		if f, ok := s.Lookup(name); ok && f.Kind == val.Kind {
			out[name] = val
			continue
		}
		dropped = append(dropped, name)
	}
	return out, dropped
}
