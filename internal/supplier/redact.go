package supplier

import "strings"

// Deny-list of payload keys stripped before persistence. Matching is
// case-insensitive and applies at every nesting level.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"secret":        {},
	"token":         {},
	"api_key":       {},
	"apikey":        {},
	"authorization": {},
	"card_number":   {},
	"cvv":           {},
	"pan":           {},
	"guest_email":   {},
	"guest_phone":   {},
}

// Redact returns a copy of a raw supplier payload with deny-listed keys
// removed. The input is never mutated.
func Redact(payload map[string]interface{}) map[string]interface{} {
	if payload == nil {
		return nil
	}

	out := make(map[string]interface{}, len(payload))
	for key, value := range payload {
		if _, sensitive := sensitiveKeys[strings.ToLower(key)]; sensitive {
			continue
		}
		out[key] = redactValue(value)
	}
	return out
}

func redactValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return Redact(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = redactValue(item)
		}
		return out
	default:
		return value
	}
}
