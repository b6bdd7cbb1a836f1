package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// EmptySearchKey is the canonical key of a query without parameters.
const EmptySearchKey = "[]"

// SearchKey returns the canonical key for query.
//
// Two queries with the same key/value pairs produce the same key regardless of
// insertion or declaration order; any difference in keys or values produces a
// different key.
func SearchKey(query any) string {
	fields := queryFields(query)
	if len(fields) == 0 {
		return EmptySearchKey
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + encodeValue(fields[k])
	}

	data, err := json.Marshal(pairs)
	if err != nil {
		// []string always marshals
		return EmptySearchKey
	}
	return string(data)
}

// queryFields flattens query into its present key/value pairs.
func queryFields(query any) map[string]any {
	rv, ok := deref(reflect.ValueOf(query))
	if !ok {
		return nil
	}

	fields := make(map[string]any)

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			fields[""] = rv.Interface()
			return fields
		}
		iter := rv.MapRange()
		for iter.Next() {
			if isAbsent(iter.Value()) {
				continue
			}
			fields[iter.Key().String()] = iter.Value().Interface()
		}
	case reflect.Struct:
		collectStructFields(rv, fields)
	default:
		fields[""] = rv.Interface()
	}

	return fields
}

func collectStructFields(rv reflect.Value, fields map[string]any) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		value := rv.Field(i)

		if field.Anonymous {
			if embedded, ok := deref(value); ok && embedded.Kind() == reflect.Struct {
				collectStructFields(embedded, fields)
				continue
			}
		}

		if !field.IsExported() {
			continue
		}

		name, omitEmpty, skip := jsonName(field)
		if skip {
			continue
		}

		if isAbsent(value) || (omitEmpty && value.IsZero()) {
			continue
		}
		fields[name] = value.Interface()
	}
}

func jsonName(field reflect.StructField) (name string, omitEmpty bool, skip bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}

	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = field.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}

// deref follows pointers and interfaces, reporting false for nil.
func deref(rv reflect.Value) (reflect.Value, bool) {
	for rv.IsValid() && (rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return reflect.Value{}, false
		}
		rv = rv.Elem()
	}
	return rv, rv.IsValid()
}

func isAbsent(rv reflect.Value) bool {
	for rv.IsValid() && rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return true
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// encodeValue stringifies v deterministically. encoding/json sorts map keys,
// so nested maps are stable too.
func encodeValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("fallback:%T", v)
	}
	return string(data)
}
