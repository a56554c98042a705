// Package dynjson models arbitrary JSON documents as a closed sum type
// instead of relying on reflection over interface{}. The Validator Runtime
// walks values of this type; nothing in the runtime type-switches on
// map[string]any or []any directly.
package dynjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind identifies which variant of Value is populated.
type Kind uint8

// Value kinds.
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
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a JSON value: Null | Bool | Num | Str | Array | Object.
// Object preserves key insertion order via keys, mirroring how FHIR
// documents are conventionally rendered (element order matters for
// slicing discrimination but not for equality).
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	keys []string
	obj  map[string]Value
}

// Null returns the JSON null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a float64.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array wraps a slice of values.
func Array(items []Value) Value { return Value{kind: KindArray, arr: items} }

// Object builds an object value from ordered key/value pairs.
func Object(pairs ...KV) Value {
	v := Value{kind: KindObject, obj: make(map[string]Value, len(pairs)), keys: make([]string, 0, len(pairs))}
	for _, p := range pairs {
		if _, exists := v.obj[p.Key]; !exists {
			v.keys = append(v.keys, p.Key)
		}
		v.obj[p.Key] = p.Value
	}
	return v
}

// KV is a key/value pair used to build an Object.
type KV struct {
	Key   string
	Value Value
}

// Kind reports which variant is populated.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is JSON null (or a zero Value).
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean payload; ok is false if the kind isn't KindBool.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Number returns the numeric payload; ok is false if the kind isn't KindNumber.
func (v Value) Number() (float64, bool) { return v.n, v.kind == KindNumber }

// String returns the string payload; ok is false if the kind isn't KindString.
func (v Value) String() (string, bool) { return v.s, v.kind == KindString }

// Array returns the item slice; ok is false if the kind isn't KindArray.
func (v Value) Array() ([]Value, bool) { return v.arr, v.kind == KindArray }

// Keys returns object field names in insertion order; nil if not an object.
func (v Value) Keys() []string { return v.keys }

// Field looks up a field by name on an object value.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	child, ok := v.obj[name]
	return child, ok
}

// Len returns the element/field count for arrays and objects, 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.keys)
	default:
		return 0
	}
}

// Equal reports deep structural equality between two values. Object field
// order is not significant; array order is.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.keys) != len(b.keys) {
			return false
		}
		for _, k := range a.keys {
			bv, ok := b.obj[k]
			if !ok || !Equal(a.obj[k], bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ContainsFields reports whether every field of pattern is present in v
// with an equal (recursively, for objects) value — FHIR "pattern[x]"
// semantics, which are a subset match rather than full equality.
func ContainsFields(v, pattern Value) bool {
	if pattern.kind != KindObject {
		return Equal(v, pattern)
	}
	if v.kind != KindObject {
		return false
	}
	for _, k := range pattern.keys {
		pv := pattern.obj[k]
		vv, ok := v.obj[k]
		if !ok {
			return false
		}
		if !ContainsFields(vv, pv) {
			return false
		}
	}
	return true
}

// FromAny converts a decoded encoding/json value (map[string]any, []any,
// string, float64, bool, nil) into a Value tree. A decoded map carries no
// key order, so object keys are sorted lexicographically; Parse is the
// path that keeps document order.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case json.Number:
		f, _ := t.Float64()
		return Number(f)
	case string:
		return String(t)
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = FromAny(e)
		}
		return Array(items)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]KV, 0, len(t))
		for _, k := range keys {
			pairs = append(pairs, KV{Key: k, Value: FromAny(t[k])})
		}
		return Object(pairs...)
	default:
		return Null()
	}
}

// Parse decodes raw JSON bytes into a Value tree, preserving object key
// order as it appears on the wire (via recursive json.RawMessage decoding).
func Parse(data []byte) (Value, error) {
	var raw json.RawMessage = data
	v, err := parseRaw(raw)
	if err != nil {
		return Value{}, fmt.Errorf("dynjson: parse: %w", err)
	}
	return v, nil
}

func parseRaw(raw json.RawMessage) (Value, error) {
	trimmed := trimLeadingSpace(raw)
	if len(trimmed) == 0 {
		return Null(), nil
	}
	switch trimmed[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return Value{}, err
		}
		var order orderedKeys
		if err := json.Unmarshal(raw, &order); err != nil {
			return Value{}, err
		}
		pairs := make([]KV, 0, len(order.keys))
		for _, k := range order.keys {
			child, err := parseRaw(obj[k])
			if err != nil {
				return Value{}, err
			}
			pairs = append(pairs, KV{Key: k, Value: child})
		}
		return Object(pairs...), nil
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return Value{}, err
		}
		items := make([]Value, len(arr))
		for i, e := range arr {
			child, err := parseRaw(e)
			if err != nil {
				return Value{}, err
			}
			items[i] = child
		}
		return Array(items), nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		return String(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case 'n':
		return Null(), nil
	default:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return Value{}, err
		}
		return Number(n), nil
	}
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			i++
		default:
			return b[i:]
		}
	}
	return b[i:]
}

// orderedKeys recovers object key order using json.Decoder's token stream.
type orderedKeys struct {
	keys []string
}

func (o *orderedKeys) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("dynjson: expected object")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		o.keys = append(o.keys, key)
		if err := skipToken(dec); err != nil {
			return err
		}
	}
	return nil
}

// skipToken consumes one complete JSON value from the decoder's stream.
func skipToken(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok {
		return nil
	}
	depth := 1
	for depth > 0 {
		next, err := dec.Token()
		if err != nil {
			return err
		}
		if nd, ok := next.(json.Delim); ok {
			switch nd {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	_ = d
	return nil
}

// ToAny converts a Value back into the standard map[string]any/[]any shape,
// useful for handing data to encoding/json or third-party libraries (such
// as FHIRPath evaluators) that expect it.
func (v Value) ToAny() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.ToAny()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.keys))
		for _, k := range v.keys {
			out[k] = v.obj[k].ToAny()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler, preserving object key order.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool, KindNumber, KindString:
		return json.Marshal(v.ToAny())
	case KindArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindObject:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := v.obj[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return []byte("null"), nil
	}
}
