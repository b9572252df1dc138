package contextstore

import (
	"errors"
	"fmt"
	"reflect"
	"time"
)

// ErrNotCopyable is returned for values whose copy would still share
// mutable state with the original.
var ErrNotCopyable = errors.New("value cannot be deep copied")

var timeType = reflect.TypeFor[time.Time]()

// deepCopy returns a copy of v that shares no maps, slices, arrays or
// pointers with it. Pointer cycles are preserved in the copy.
func deepCopy(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	c := copier{seen: make(map[pointerKey]reflect.Value)}
	out, err := c.copy(reflect.ValueOf(v))
	if err != nil {
		return nil, fmt.Errorf("%w: %T: %v", ErrNotCopyable, v, err)
	}
	return out.Interface(), nil
}

type pointerKey struct {
	addr uintptr
	typ  reflect.Type
}

type copier struct {
	seen map[pointerKey]reflect.Value
}

func (c copier) copy(v reflect.Value) (reflect.Value, error) {
	switch v.Kind() {
	case reflect.Map:
		if v.IsNil() {
			return v, nil
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			k, err := c.copy(iter.Key())
			if err != nil {
				return reflect.Value{}, err
			}
			e, err := c.copy(iter.Value())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(k, e)
		}
		return out, nil

	case reflect.Slice:
		if v.IsNil() {
			return v, nil
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		if err := c.copyElems(out, v); err != nil {
			return reflect.Value{}, err
		}
		return out, nil

	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		if err := c.copyElems(out, v); err != nil {
			return reflect.Value{}, err
		}
		return out, nil

	case reflect.Pointer:
		if v.IsNil() {
			return v, nil
		}
		key := pointerKey{addr: v.Pointer(), typ: v.Type()}
		if out, ok := c.seen[key]; ok {
			return out, nil
		}
		out := reflect.New(v.Type().Elem())
		c.seen[key] = out
		e, err := c.copy(v.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out.Elem().Set(e)
		return out, nil

	case reflect.Interface:
		if v.IsNil() {
			return v, nil
		}
		e, err := c.copy(v.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(e)
		return out, nil

	case reflect.Struct:
		if v.Type() == timeType {
			return v, nil
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := range v.NumField() {
			f := v.Type().Field(i)
			if !f.IsExported() {
				if mayAlias(f.Type) {
					return reflect.Value{}, fmt.Errorf("unexported field %s.%s", v.Type(), f.Name)
				}
				continue
			}
			e, err := c.copy(v.Field(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Field(i).Set(e)
		}
		return out, nil

	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return reflect.Value{}, fmt.Errorf("%s value", v.Kind())

	default:
		return v, nil
	}
}

func (c copier) copyElems(dst, src reflect.Value) error {
	for i := range src.Len() {
		e, err := c.copy(src.Index(i))
		if err != nil {
			return err
		}
		dst.Index(i).Set(e)
	}
	return nil
}

// mayAlias reports whether values of t can reference shared memory.
func mayAlias(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface,
		reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	case reflect.Array:
		return mayAlias(t.Elem())
	case reflect.Struct:
		if t == timeType {
			return false
		}
		for i := range t.NumField() {
			if mayAlias(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}
