package azure

func asSlice(v any) []any {
	if v == nil {
		return nil
	}
	if arr, ok := v.([]any); ok {
		return arr
	}
	return nil
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// asInt decodes a JSON number; encoding/json yields float64.
func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

func asStrings(v any) []string {
	items := asSlice(v)
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, asString(item))
	}
	return out
}

// mergedList folds Azure's singular/plural prefix and port fields into one
// list. The plural form wins when populated.
func mergedList(m map[string]any, singular, plural string) []string {
	if many := asStrings(m[plural]); len(many) > 0 {
		return many
	}
	if one := asString(m[singular]); one != "" {
		return []string{one}
	}
	return nil
}
