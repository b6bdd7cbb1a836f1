package cache

import (
	"fmt"
	"reflect"
	"strings"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// defaultKeySerializer builds request keys of the form op::arg::arg.
// Strings are written verbatim so ids stay readable, structured arguments go
// through SearchKey and everything else is JSON encoded.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// SerializeKey builds a cache key from the operation name and its args.
func (s *defaultKeySerializer) SerializeKey(method string, args ...any) string {
	if len(args) == 0 {
		return method
	}

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, method)

	for _, arg := range args {
		parts = append(parts, s.serializeValue(arg))
	}

	return strings.Join(parts, KeySeparator)
}

func (s *defaultKeySerializer) serializeValue(v any) string {
	if stringer, ok := v.(fmt.Stringer); ok && !isAbsent(reflect.ValueOf(v)) {
		return stringer.String()
	}

	rv, ok := deref(reflect.ValueOf(v))
	if !ok {
		return "nil"
	}

	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Map, reflect.Struct:
		return SearchKey(rv.Interface())
	case reflect.Func, reflect.Chan:
		// identity based values never produce stable keys
		return fmt.Sprintf("unsupported:%s", rv.Type())
	}

	return encodeValue(rv.Interface())
}
