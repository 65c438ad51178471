package ingest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Agents in the field disagree on spelling; the host name is accepted under
// any of these keys, first non-empty wins.
var hostNameKeys = []string{"host_name", "hostname", "name"}

// resolveField walks candidate keys in order and returns the first value that
// is a non-empty string after trimming.
func resolveField(payload map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if raw, ok := payload[key]; ok {
			if s, ok := raw.(string); ok {
				if trimmed := strings.TrimSpace(s); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return ""
}

// numberField extracts a numeric sub-field, tolerating JSON numbers and
// numeric strings.
func numberField(payload map[string]interface{}, key string) (float64, bool) {
	raw, ok := payload[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// payloadKeys returns the sorted top-level field names, used in the 422
// response so agent authors can see what actually arrived.
func payloadKeys(payload map[string]interface{}) []string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp accepts the two formats agents are known to send.
func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q, expected YYYY-MM-DD HH:MM:SS", value)
}
