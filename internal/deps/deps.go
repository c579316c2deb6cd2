package deps

import (
	"fmt"
	"reflect"
)

// Validate reports an error naming the first missing dependency of a
// component. Nil pointers, nil interfaces and zero values all count as missing.
func Validate(component string, deps ...any) error {
	for i, dep := range deps {
		if missing(dep) {
			return fmt.Errorf("missing required dependency #%d (%T) for component: %s", i, dep, component)
		}
	}

	return nil
}

func missing(dep any) bool {
	if dep == nil {
		return true
	}

	v := reflect.ValueOf(dep)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	default:
		return v.IsZero()
	}
}
