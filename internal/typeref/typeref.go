package typeref

import (
	"reflect"
	"sync"
)

var keyCache sync.Map

// Key derives the service key for a contract type. Interface types resolve
// through their pointer so a nil zero value still yields the interface key.
func Key[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		t = reflect.TypeOf((*T)(nil)).Elem()
	}
	return keyFromReflect(t)
}

func KeyNamed[T any](name string) string {
	return Key[T]() + "#" + name
}

func KeyFromValue(v any) string {
	if v == nil {
		return "<nil>"
	}
	return keyFromReflect(reflect.TypeOf(v))
}

func KeyFromType(t reflect.Type) string {
	return keyFromReflect(t)
}

func keyFromReflect(t reflect.Type) string {
	if cached, ok := keyCache.Load(t); ok {
		return cached.(string)
	}

	key := buildKey(t)
	keyCache.Store(t, key)
	return key
}

func buildKey(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	switch t.Kind() {
	case reflect.Ptr:
		return "*" + buildKey(t.Elem())
	case reflect.Slice:
		return "[]" + buildKey(t.Elem())
	case reflect.Map:
		return "map[" + buildKey(t.Key()) + "]" + buildKey(t.Elem())
	case reflect.Chan:
		switch t.ChanDir() {
		case reflect.RecvDir:
			return "<-chan " + buildKey(t.Elem())
		case reflect.SendDir:
			return "chan<- " + buildKey(t.Elem())
		default:
			return "chan " + buildKey(t.Elem())
		}
	case reflect.Func:
		return t.String()
	default:
		if t.PkgPath() != "" {
			return t.PkgPath() + "." + t.Name()
		}
		return t.Name()
	}
}

func Name[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		t = reflect.TypeOf((*T)(nil)).Elem()
	}
	return t.String()
}

func IsNil(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}
