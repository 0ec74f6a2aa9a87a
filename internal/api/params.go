package api

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Params are the arguments of an API method. Values are converted with Stringify.
type Params map[string]any

// Values converts p to form values, dropping nil entries.
func (p Params) Values() url.Values {
	out := make(url.Values, len(p))
	for key, value := range p {
		if s, ok := Stringify(value); ok {
			out.Set(key, s)
		}
	}
	return out
}

// Stringify renders a parameter value the way the API expects it:
//   - strings are sent untouched
//   - booleans become "1" or "0"
//   - numbers become decimal text
//   - slices and arrays become their stringified elements joined by commas
//   - fmt.Stringer values use String()
//
// The second result is false for nil values, which are dropped.
func Stringify(value any) (string, bool) {
	if rv := reflect.ValueOf(value); (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) && rv.IsNil() {
		return "", false
	}

	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case []byte:
		return string(v), true
	case bool:
		if v {
			return "1", true
		}
		return "0", true
	case fmt.Stringer:
		return v.String(), true
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "", false
		}
		return Stringify(rv.Elem().Interface())
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return Stringify(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), true
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return "", false
		}
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		parts := lo.FilterMap(items, func(item any, _ int) (string, bool) {
			return Stringify(item)
		})
		return strings.Join(parts, ","), true
	default:
		return fmt.Sprint(value), true
	}
}
