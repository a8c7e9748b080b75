package store

import (
	"encoding/json"
	"math"
	"reflect"

	"github.com/cespare/xxhash/v2"
)

// EqualFunc compares two values for equality.
type EqualFunc[T any] func(a, b T) bool

// Is reports whether a and b are the same value.
// Scalars use ==. Maps, slices, pointers, channels and funcs compare by
// identity. Structs, arrays and interfaces compare field by field under the
// same rules, so a struct holding the same slice is the same value. NaN
// equals NaN.
func Is[T any](a, b T) bool {
	switch av := any(a).(type) {
	case int:
		bv, ok := any(b).(int)
		return ok && av == bv
	case int64:
		bv, ok := any(b).(int64)
		return ok && av == bv
	case int32:
		bv, ok := any(b).(int32)
		return ok && av == bv
	case uint:
		bv, ok := any(b).(uint)
		return ok && av == bv
	case uint64:
		bv, ok := any(b).(uint64)
		return ok && av == bv
	case string:
		bv, ok := any(b).(string)
		return ok && av == bv
	case bool:
		bv, ok := any(b).(bool)
		return ok && av == bv
	case float64:
		bv, ok := any(b).(float64)
		return ok && (av == bv || (math.IsNaN(av) && math.IsNaN(bv)))
	case float32:
		bv, ok := any(b).(float32)
		return ok && (av == bv || (av != av && bv != bv))
	}
	return isReflect(reflect.ValueOf(any(a)), reflect.ValueOf(any(b)))
}

func isReflect(ra, rb reflect.Value) bool {
	if !ra.IsValid() || !rb.IsValid() {
		return ra.IsValid() == rb.IsValid()
	}
	if ra.Type() != rb.Type() {
		return false
	}
	switch ra.Kind() {
	case reflect.Slice:
		return ra.Len() == rb.Len() && ra.Pointer() == rb.Pointer()
	case reflect.Map, reflect.Pointer, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return ra.Pointer() == rb.Pointer()
	case reflect.Float32, reflect.Float64:
		fa, fb := ra.Float(), rb.Float()
		return fa == fb || (math.IsNaN(fa) && math.IsNaN(fb))
	case reflect.Interface:
		if ra.IsNil() || rb.IsNil() {
			return ra.IsNil() == rb.IsNil()
		}
		return isReflect(ra.Elem(), rb.Elem())
	case reflect.Struct:
		for i := 0; i < ra.NumField(); i++ {
			if !isReflect(ra.Field(i), rb.Field(i)) {
				return false
			}
		}
		return true
	case reflect.Array:
		for i := 0; i < ra.Len(); i++ {
			if !isReflect(ra.Index(i), rb.Index(i)) {
				return false
			}
		}
		return true
	}
	return ra.Equal(rb)
}

// DeepEqual compares values structurally with reflect.DeepEqual.
func DeepEqual[T any](a, b T) bool {
	return reflect.DeepEqual(a, b)
}

// ShallowEqual compares maps and slices element by element with Is, and any
// other value with Is. Useful for derivations that rebuild a collection of
// unchanged references.
func ShallowEqual[T any](a, b T) bool {
	ra, rb := reflect.ValueOf(any(a)), reflect.ValueOf(any(b))
	if !ra.IsValid() || !rb.IsValid() || ra.Type() != rb.Type() {
		return isReflect(ra, rb)
	}
	switch ra.Kind() {
	case reflect.Slice, reflect.Array:
		if ra.Len() != rb.Len() {
			return false
		}
		for i := 0; i < ra.Len(); i++ {
			if !isReflect(ra.Index(i), rb.Index(i)) {
				return false
			}
		}
		return true
	case reflect.Map:
		if ra.Len() != rb.Len() {
			return false
		}
		iter := ra.MapRange()
		for iter.Next() {
			bv := rb.MapIndex(iter.Key())
			if !bv.IsValid() || !isReflect(iter.Value(), bv) {
				return false
			}
		}
		return true
	case reflect.Struct:
		for i := 0; i < ra.NumField(); i++ {
			if !isReflect(ra.Field(i), rb.Field(i)) {
				return false
			}
		}
		return true
	}
	return isReflect(ra, rb)
}

// HashEqual compares the xxhash fingerprints of the JSON encodings of a and b.
// Values that fail to encode fall back to DeepEqual.
func HashEqual[T any](a, b T) bool {
	ha, okA := Fingerprint(a)
	hb, okB := Fingerprint(b)
	if !okA || !okB {
		return reflect.DeepEqual(a, b)
	}
	return ha == hb
}

// Fingerprint returns the xxhash of v's JSON encoding.
func Fingerprint(v any) (uint64, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, false
	}
	return xxhash.Sum64(data), true
}
