package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Payload is the structured key-value data of an envelope. Values decoded
// from JSON arrive as float64/string/bool/map, so the accessors coerce.
type Payload map[string]interface{}

func (p Payload) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

func (p Payload) Float(key string) (float64, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}

func (p Payload) Int(key string) (int64, bool) {
	f, ok := p.Float(key)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func (p Payload) Bool(key string) bool {
	v, ok := p[key]
	if !ok || v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(val))
		return b
	case float64:
		return val != 0
	case int:
		return val != 0
	}
	return false
}

// Time accepts RFC3339 strings, "2006-01-02" dates and time.Time values.
func (p Payload) Time(key string) (time.Time, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return time.Time{}, false
	}
	switch val := v.(type) {
	case time.Time:
		return val, true
	case *time.Time:
		if val == nil {
			return time.Time{}, false
		}
		return *val, true
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func (p Payload) Map(key string) Payload {
	v, ok := p[key]
	if !ok || v == nil {
		return nil
	}
	switch val := v.(type) {
	case Payload:
		return val
	case map[string]interface{}:
		return Payload(val)
	}
	return nil
}

// Lower returns the trimmed lower-cased string value of key.
func (p Payload) Lower(key string) string {
	return strings.ToLower(strings.TrimSpace(p.String(key)))
}
