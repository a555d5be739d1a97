// Package platform holds field helpers shared by the per-platform
// classifiers.
package platform

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// String reads m[key] as a string. JSON numbers are rendered without an
// exponent so numeric ids survive. Anything else yields "".
func String(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// Object reads m[key] as a JSON object, or nil.
func Object(m map[string]interface{}, key string) map[string]interface{} {
	if m == nil {
		return nil
	}
	obj, _ := m[key].(map[string]interface{})
	return obj
}

// Has reports whether key is present with a non-null value.
func Has(m map[string]interface{}, key string) bool {
	if m == nil {
		return false
	}
	v, ok := m[key]
	return ok && v != nil
}

// Code reads m[key] as an integer notification code. Integral JSON numbers
// and numeric strings are accepted.
func Code(m map[string]interface{}, key string) (int, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		if v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32 {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := strconv.Atoi(v.String())
		return n, err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	default:
		return 0, false
	}
}

// RawValue renders m[key] for logs and raw_type fields.
func RawValue(m map[string]interface{}, key string) string {
	if s := String(m, key); s != "" {
		return s
	}
	if m == nil || m[key] == nil {
		return ""
	}
	data, err := json.Marshal(m[key])
	if err != nil {
		return ""
	}
	return string(data)
}
