package syncservice

// Accessors for client payloads. JSON null and a missing key are treated
// the same for required fields, but hasKey lets callers distinguish
// "clear this field" (explicit null) from "leave it alone" (absent).

func hasKey(p map[string]any, key string) bool {
	_, ok := p[key]
	return ok
}

func getString(p map[string]any, key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func stringPtr(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func getInt(p map[string]any, key string) (int, bool) {
	switch v := p[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}

func getStrings(p map[string]any, key string) ([]string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, false
	}
	switch raw := v.(type) {
	case []string:
		return raw, true
	case []any:
		out := make([]string, 0, len(raw))
		for _, e := range raw {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	}
	return nil, false
}
