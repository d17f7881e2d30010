package schema

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ahmetk3436/ppmchat/internal/ppm"
)

// excludedTypes never make it into a cached schema.
var excludedTypes = map[string]bool{
	"clob":       true,
	"largetext":  true,
	"longtext":   true,
	"binary":     true,
	"blob":       true,
	"attachment": true,
	"image":      true,
	"file":       true,
}

var groupableTypes = map[string]bool{
	"string":  true,
	"lookup":  true,
	"boolean": true,
	"number":  true,
	"integer": true,
}

// groupPriority lists fields that make useful distributions, best first.
var groupPriority = []string{
	"status", "priority", "stage", "phase", "type", "category", "manager",
	"owner", "department", "isActive", "goal", "health", "progress",
}

// GroupableFields returns the attributes suited to a value distribution:
// priority fields first, then lookups, then the rest by display name.
func GroupableFields(entry *Entry) []Attribute {
	if entry == nil {
		return nil
	}

	var out []Attribute
	for _, a := range entry.Attributes {
		if strings.HasPrefix(a.APIName, "_") && a.APIName != ppm.IdentityField {
			continue
		}
		if a.IsReadOnly && !a.IsLookup {
			continue
		}
		if !groupableTypes[strings.ToLower(a.DataType)] && !a.IsLookup {
			continue
		}
		out = append(out, a)
	}

	rank := func(a Attribute) int {
		for i, p := range groupPriority {
			if strings.EqualFold(a.APIName, p) {
				return i
			}
		}
		return len(groupPriority)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i]), rank(out[j])
		if ri != rj {
			return ri < rj
		}
		if out[i].IsLookup != out[j].IsLookup {
			return out[i].IsLookup
		}
		return strings.ToLower(out[i].DisplayName) < strings.ToLower(out[j].DisplayName)
	})
	return out
}

// parseEntry normalizes a describe response. Backends disagree on the key
// names used for attribute metadata, so several spellings are accepted.
func parseEntry(objectType string, resp *ppm.Response) *Entry {
	raw := resp.Raw
	if raw == nil {
		raw = map[string]any{}
	}

	entry := &Entry{
		ResourceName: firstString(raw, "resourceName", "name"),
		Label:        firstString(raw, "label", "displayName"),
		PluralLabel:  firstString(raw, "pluralLabel", "displayNamePlural"),
		IsCustom:     boolValue(raw["isCustom"]),
	}
	if entry.ResourceName == "" {
		entry.ResourceName = objectType
	}

	var items []map[string]any
	for _, key := range []string{"attributes", "fields"} {
		if list, ok := raw[key].([]any); ok {
			for _, item := range list {
				if m, ok := item.(map[string]any); ok {
					items = append(items, m)
				}
			}
			break
		}
	}
	if items == nil {
		items = resp.Results
	}

	seen := make(map[string]bool)
	for _, item := range items {
		a := parseAttribute(item)
		if a.APIName == "" || excludedTypes[strings.ToLower(a.DataType)] || seen[a.APIName] {
			continue
		}
		seen[a.APIName] = true
		entry.Attributes = append(entry.Attributes, a)
	}
	return entry
}

func parseAttribute(m map[string]any) Attribute {
	a := Attribute{
		APIName:     firstString(m, "apiAttributeName", "attributeName", "apiName", "name"),
		DisplayName: firstString(m, "displayName", "label", "attributeLabel", "name"),
		DataType:    strings.ToLower(firstString(m, "dataType", "type")),
		IsRequired:  boolValue(m["isRequired"]) || boolValue(m["required"]),
		IsReadOnly:  boolValue(m["isReadOnly"]) || boolValue(m["readOnly"]),
		LookupType:  firstString(m, "lookupType", "lookupName", "lookup"),
		MaxLength:   intValue(m, "maxLength", "size"),
		Precision:   intValue(m, "precision"),
		Scale:       intValue(m, "scale", "decimal"),
	}
	a.IsLookup = boolValue(m["isLookup"]) || a.DataType == "lookup" || a.LookupType != ""
	if a.DisplayName == "" {
		a.DisplayName = a.APIName
	}
	return a
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func boolValue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		ok, _ := strconv.ParseBool(b)
		return ok
	default:
		return false
	}
}

func intValue(m map[string]any, keys ...string) *int {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			n := int(v)
			return &n
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				return &n
			}
		}
	}
	return nil
}
