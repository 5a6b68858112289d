package utils

// ToStringSlice converts a decoded JSON array into a string slice, skipping
// non-string entries. A []string input is returned as a copy.
func ToStringSlice(v any) []string {
	stringSlice := make([]string, 0)
	switch slice := v.(type) {
	case []string:
		stringSlice = append(stringSlice, slice...)
	case []any:
		for _, v := range slice {
			if s, ok := v.(string); ok {
				stringSlice = append(stringSlice, s)
			}
		}
	}
	return stringSlice
}

// StringField returns m[key] when it holds a string.
func StringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// MapField returns m[key] when it holds a JSON object.
func MapField(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	sub, _ := m[key].(map[string]any)
	return sub
}
