package datastore

import (
	"reflect"
	"strings"
	"time"
	"unicode"
)

// Row flattens an exported struct into a column map for BatchInsert. Column
// names come from the `db` tag, falling back to the snake_cased field name.
// A `db:"-"` tag skips the field. Times are stored as RFC 3339 in UTC.
func Row[T any](value T) map[string]any {
	row := make(map[string]any)
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return row
		}
		v = v.Elem()
	}
	appendColumns(v, row)
	return row
}

func appendColumns(v reflect.Value, row map[string]any) {
	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		value := v.Field(i)
		if field.Anonymous && value.Kind() == reflect.Struct {
			appendColumns(value, row)
			continue
		}

		key := toSnakeCase(field.Name)
		if tag, _, _ := strings.Cut(field.Tag.Get("db"), ","); tag == "-" {
			continue
		} else if tag != "" {
			key = tag
		}
		row[key] = columnValue(value)
	}
}

func columnValue(value reflect.Value) any {
	if value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return nil
		}
		value = value.Elem()
	}
	if ts, ok := value.Interface().(time.Time); ok {
		return ts.UTC().Format(time.RFC3339)
	}
	if value.Kind() == reflect.Slice && value.Type().Elem().Kind() == reflect.String {
		items := make([]string, value.Len())
		for i := range items {
			items[i] = value.Index(i).String()
		}
		return strings.Join(items, ", ")
	}
	return value.Interface()
}

// toSnakeCase maps DispatchedAt to dispatched_at and URL to url.
func toSnakeCase(input string) string {
	runes := []rune(input)
	var b strings.Builder
	b.Grow(len(runes) + 4)

	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteRune('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
