package output

import (
	"encoding/json"
	"io"
	"reflect"
)

// PrintJSON writes data as indented JSON. HTML characters are left as is,
// since mail addresses and attribute values are printed verbatim. A nil
// slice prints as [] so scripts can always iterate the result.
func PrintJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(emptyIfNil(data))
}

// emptyIfNil replaces a nil slice with an empty one of the same type.
func emptyIfNil(data any) any {
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return data
}
