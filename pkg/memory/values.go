package memory

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// Entry is one element of a list-like value. Key is the int index for
// arrays and the string key for objects.
type Entry struct {
	Key   any
	Value any
}

// Entries enumerates an array or an object. Object keys are visited in
// sorted order so iteration is stable across turns.
func Entries(v any) ([]Entry, bool) {
	switch c := v.(type) {
	case nil:
		return nil, true
	case []any:
		out := make([]Entry, len(c))
		for i, item := range c {
			out[i] = Entry{Key: i, Value: item}
		}
		return out, true
	case map[string]any:
		keys := make([]string, 0, len(c))
		for k := range c {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]Entry, len(keys))
		for i, k := range keys {
			out[i] = Entry{Key: k, Value: c[k]}
		}
		return out, true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]Entry, rv.Len())
		for i := range out {
			out[i] = Entry{Key: i, Value: rv.Index(i).Interface()}
		}
		return out, true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		out := make([]Entry, len(keys))
		for i, k := range keys {
			out[i] = Entry{Key: k, Value: rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface()}
		}
		return out, true
	}
	return nil, false
}

// ToInt converts a numeric value (or numeric string) to int.
func ToInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		if float32(int(n)) == n {
			return int(n), true
		}
	case float64:
		if math.Trunc(n) == n && !math.IsInf(n, 0) {
			return int(n), true
		}
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

// ToFloat converts a numeric value to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Truthy applies the usual scripting-language notion of truth: nil, false,
// zero, NaN and the empty string are false, everything else is true.
func Truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != ""
	}
	if f, ok := ToFloat(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

// Equal compares two JSON-like values, treating numbers of different Go
// types as equal when they hold the same value.
func Equal(a, b any) bool {
	if fa, ok := ToFloat(a); ok {
		fb, ok := ToFloat(b)
		return ok && fa == fb
	}
	switch x := a.(type) {
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			w, ok := y[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// Clone deep copies maps and arrays. Other values are returned as is.
func Clone(v any) any {
	switch c := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, item := range c {
			out[k] = Clone(item)
		}
		return out
	case []any:
		out := make([]any, len(c))
		for i, item := range c {
			out[i] = Clone(item)
		}
		return out
	}
	return v
}

// Decode converts src into dst through its JSON form. It is used to rebuild
// typed values from state that went through a storage round trip.
func Decode(src, dst any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("encode %T: %w", src, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode into %T: %w", dst, err)
	}
	return nil
}

// Normalize converts v into its generic JSON representation.
func Normalize(v any) (any, error) {
	var out any
	if err := Decode(v, &out); err != nil {
		return nil, err
	}
	return out, nil
}
