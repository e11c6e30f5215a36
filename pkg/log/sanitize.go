package log

import (
	"reflect"
	"sort"
)

// Sanitize reduces an error payload to values that are safe to record.
//
// Strings, booleans and numbers pass through unchanged. An error becomes its
// message. A map with string keys is copied keeping only entries whose
// values are strings, booleans or numbers; nested maps, slices, functions,
// pointers and other values are dropped. Any other value yields nil.
func Sanitize(v any) any {
	if v == nil {
		return nil
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if isScalar(reflect.ValueOf(v)) {
		return v
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil
	}

	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		val := iter.Value()
		if val.Kind() == reflect.Interface {
			if val.IsNil() {
				continue
			}
			val = val.Elem()
		}
		if isScalar(val) {
			out[iter.Key().String()] = val.Interface()
		}
	}
	return out
}

// SortedKeys returns the keys of a sanitized map in lexical order.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isScalar(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
