// Package value provides the opaque structured value used for loosely typed record payloads.
//
// A Value is a tagged union over null, bool, number, string, array and object. Record payloads
// arriving from the source API are decoded into Values so that nothing downstream assumes a
// schema beyond the handful of fields the sync actually reads.
package value

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kind identifies which variant a Value holds
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is an immutable structured value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  map[string]Value
}

// Null returns the null value
func Null() Value { return Value{} }

// Bool wraps a boolean
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a number
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String wraps a string
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array builds an array value from items
func Array(items ...Value) Value {
	arr := make([]Value, len(items))
	copy(arr, items)
	return Value{kind: KindArray, arr: arr}
}

// Object builds an object value from fields
func Object(fields map[string]Value) Value {
	obj := make(map[string]Value, len(fields))
	for k, v := range fields {
		obj[k] = v
	}
	return Value{kind: KindObject, obj: obj}
}

// Kind returns the variant held by v
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsZero lets bson omitempty drop null values
func (v Value) IsZero() bool { return v.kind == KindNull }

// AsBool returns the boolean held by v, if any
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsNumber returns the number held by v, if any
func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.n, true
}

// AsString returns the string held by v, if any
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// Len returns the number of items of an array or fields of an object, otherwise 0
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	default:
		return 0
	}
}

// Index returns the i-th array item, or null when out of range or not an array
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Null()
	}
	return v.arr[i]
}

// Items returns a copy of the array items, or nil when v is not an array
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	out := make([]Value, len(v.arr))
	copy(out, v.arr)
	return out
}

// Lookup returns the named field of an object
func (v Value) Lookup(key string) (Value, bool) {
	if v.kind != KindObject {
		return Null(), false
	}
	field, ok := v.obj[key]
	return field, ok
}

// Get returns the named field of an object, or null when absent
func (v Value) Get(key string) Value {
	field, _ := v.Lookup(key)
	return field
}

// Keys returns the sorted field names of an object
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// With returns a copy of the object v with key set to field.
// Non-object values are treated as an empty object.
func (v Value) With(key string, field Value) Value {
	obj := make(map[string]Value, len(v.obj)+1)
	if v.kind == KindObject {
		for k, f := range v.obj {
			obj[k] = f
		}
	}
	obj[key] = field
	return Value{kind: KindObject, obj: obj}
}

// Truthy follows the usual scripting rules: null, false, 0, "" and empty collections are false.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0 && !math.IsNaN(v.n)
	case KindString:
		return v.s != ""
	case KindArray:
		return len(v.arr) > 0
	case KindObject:
		return len(v.obj) > 0
	default:
		return false
	}
}

// Equal reports deep equality
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, f := range v.obj {
			of, ok := o.obj[k]
			if !ok || !f.Equal(of) {
				return false
			}
		}
		return true
	}
	return false
}

// Interface converts v into plain Go values (nil, bool, float64, string, []any, map[string]any).
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, f := range v.obj {
			out[k] = f.Interface()
		}
		return out
	default:
		return nil
	}
}

// FromInterface converts decoded JSON or BSON data into a Value
func FromInterface(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case time.Time:
		return String(t.UTC().Format(time.RFC3339Nano)), nil
	case primitive.DateTime:
		return String(t.Time().UTC().Format(time.RFC3339Nano)), nil
	case primitive.ObjectID:
		return String(t.Hex()), nil
	case []any:
		return fromSlice(t)
	case primitive.A:
		return fromSlice([]any(t))
	case map[string]any:
		return fromMap(t)
	case primitive.M:
		return fromMap(map[string]any(t))
	case primitive.D:
		obj := make(map[string]Value, len(t))
		for _, e := range t {
			field, err := FromInterface(e.Value)
			if err != nil {
				return Null(), fmt.Errorf("field %q: %w", e.Key, err)
			}
			obj[e.Key] = field
		}
		return Value{kind: KindObject, obj: obj}, nil
	default:
		return Null(), fmt.Errorf("unsupported value type %T", x)
	}
}

func fromSlice(items []any) (Value, error) {
	arr := make([]Value, len(items))
	for i, item := range items {
		v, err := FromInterface(item)
		if err != nil {
			return Null(), fmt.Errorf("index %d: %w", i, err)
		}
		arr[i] = v
	}
	return Value{kind: KindArray, arr: arr}, nil
}

func fromMap(m map[string]any) (Value, error) {
	obj := make(map[string]Value, len(m))
	for k, item := range m {
		v, err := FromInterface(item)
		if err != nil {
			return Null(), fmt.Errorf("field %q: %w", k, err)
		}
		obj[k] = v
	}
	return Value{kind: KindObject, obj: obj}, nil
}

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON implements json.Unmarshaler
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromInterface(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalBSONValue implements bson.ValueMarshaler
func (v Value) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if v.kind == KindNull {
		return bsontype.Null, nil, nil
	}
	return bson.MarshalValue(v.Interface())
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler
func (v *Value) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t == bsontype.Null || t == bsontype.Undefined {
		*v = Null()
		return nil
	}
	var raw any
	if err := (bson.RawValue{Type: t, Value: data}).Unmarshal(&raw); err != nil {
		return fmt.Errorf("failed to decode bson value: %w", err)
	}
	parsed, err := FromInterface(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
