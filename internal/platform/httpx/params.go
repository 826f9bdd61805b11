package httpx

import (
	"strings"
	"time"

	"github.com/greenpass/greenpass/internal/shared"
)

// Date parses an optional YYYY-MM-DD or RFC3339 field.
func Date(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, shared.Invalid("%s: %q is not a date", field, raw)
}

// Until parses an inclusive deadline. A bare date covers the whole day.
func Until(field, raw string) (*time.Time, error) {
	t, err := Date(field, raw)
	if err != nil || t == nil {
		return t, err
	}
	if len(strings.TrimSpace(raw)) == len(time.DateOnly) {
		end := t.Add(24*time.Hour - time.Nanosecond)
		return &end, nil
	}
	return t, nil
}
