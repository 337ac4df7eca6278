package crm

import (
	"strconv"
	"strings"
)

// Entity is a raw CRM record. The portal is loose about value types
// (numbers arrive as strings or floats depending on the method), so all
// reads go through the typed accessors.
type Entity map[string]any

// Str returns the value under key rendered as a string, or "" when the
// key is absent or null.
func (e Entity) Str(key string) string {
	value, ok := e[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

// Float parses the value under key as a number. ok is false when the
// key is absent or not numeric.
func (e Entity) Float(key string) (float64, bool) {
	value, exists := e[key]
	if !exists || value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return v, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// Truthy reports whether the value under key is present and non-zero in
// the portal's sense: "", "0", 0, false and null all count as falsy.
func (e Entity) Truthy(key string) bool {
	value, ok := e[key]
	if !ok || value == nil {
		return false
	}
	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return false
		}
		if parsed, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return parsed != 0
		}
		return true
	case float64:
		return v != 0
	case bool:
		return v
	case int:
		return v != 0
	default:
		return true
	}
}

// Phones extracts the VALUE strings from a multi-value PHONE field.
// Entries are maps like {"VALUE": "+79991234567", "VALUE_TYPE": "WORK"};
// bare strings are tolerated too.
func (e Entity) Phones() []string {
	raw, ok := e["PHONE"]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	phones := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case map[string]any:
			if value, ok := v["VALUE"].(string); ok && value != "" {
				phones = append(phones, value)
			}
		case string:
			if v != "" {
				phones = append(phones, v)
			}
		}
	}
	return phones
}

// Status is one entry of a status or stage dictionary.
type Status struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Field describes one CRM entity field for mapping configuration.
type Field struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Category is one deal funnel.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
