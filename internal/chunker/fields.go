package chunker

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// ListSeparator joins the items of list-valued fields.
const ListSeparator = ", "

// Field is one flattened record value ready for chunking.
type Field struct {
	Label string
	Text  string
}

// ExtractFields flattens record into labelled text. With a non-empty
// fields list only those keys are taken, in that order; otherwise every
// key is taken in sorted order. Missing and blank values are left out.
func ExtractFields(record map[string]any, fields []string) []Field {
	keys := fields
	if len(keys) == 0 {
		keys = make([]string, 0, len(record))
		for k := range record {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}

	out := make([]Field, 0, len(keys))
	for _, k := range keys {
		v, ok := record[k]
		if !ok {
			continue
		}
		text := strings.TrimSpace(flatten(v))
		if text == "" {
			continue
		}
		out = append(out, Field{Label: k, Text: text})
	}
	return out
}

func flatten(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := strings.TrimSpace(flatten(item)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ListSeparator)
	case []string:
		return strings.Join(t, ListSeparator)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
