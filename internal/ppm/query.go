package ppm

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// NoValueLabel is the distribution bucket for records missing the grouped field.
const NoValueLabel = "(No value)"

// EqualsFilter renders a single-field equality in the backend's filter syntax,
// e.g. ((status = 'Active')).
func EqualsFilter(field, value string) string {
	return "(" + equalsClause(field, value) + ")"
}

// FilterAll joins equality clauses with "and" in key order.
func FilterAll(filters map[string]string) string {
	if len(filters) == 0 {
		return ""
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	for _, k := range keys {
		clauses = append(clauses, equalsClause(k, filters[k]))
	}
	return "(" + strings.Join(clauses, " and ") + ")"
}

func equalsClause(field, value string) string {
	if value == NoValueLabel {
		return fmt.Sprintf("(%s = null)", field)
	}
	return fmt.Sprintf("(%s = '%s')", field, strings.ReplaceAll(value, "'", "\\'"))
}

// Endpoint appends query parameters to path. Parameter order is stable.
func Endpoint(path string, params map[string]string) string {
	if len(params) == 0 {
		return path
	}
	v := url.Values{}
	for k, val := range params {
		if val != "" {
			v.Set(k, val)
		}
	}
	if len(v) == 0 {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + v.Encode()
}

// SplitEndpoint separates the query string a planned endpoint may carry from
// its path. Values are unescaped when they are escaped and kept verbatim
// otherwise, so raw filters like ((status = 'Active')) survive.
func SplitEndpoint(endpoint string) (string, map[string]string) {
	path, rawQuery, found := strings.Cut(endpoint, "?")
	if !found || rawQuery == "" {
		return path, nil
	}
	params := make(map[string]string)
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if strings.Contains(value, "%") {
			if v, err := url.QueryUnescape(value); err == nil {
				value = v
			}
		}
		if key != "" {
			params[key] = value
		}
	}
	return path, params
}

// ClampLimit applies the default page size and the backend ceiling.
func ClampLimit(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		n = fallback
	}
	if n > MaxResults {
		n = MaxResults
	}
	return n
}

// FormatValue renders a record attribute for display. Lookup attributes come
// back as objects and are reduced to their most readable member.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', 2, 64)
	case map[string]any:
		for _, key := range []string{"displayValue", "name", "code", "id"} {
			if s := FormatValue(val[key]); s != "" {
				return s
			}
		}
		return ""
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := FormatValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}
