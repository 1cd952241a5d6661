package gateway

import (
	"encoding/json"
	"strings"
)

func (h *Hub) messageFormat(event string, payload interface{}, code *int) gatewayPayload {
	return gatewayPayload{
		Type: event,
		Data: payload,
		Code: code,
	}
}

// payloadFromArgs tolerates the shapes socket.io clients actually send:
// native maps, JSON strings, or anything JSON-shaped.
func payloadFromArgs(args ...any) map[string]interface{} {
	if len(args) == 0 || args[0] == nil {
		return map[string]interface{}{}
	}

	switch raw := args[0].(type) {
	case map[string]interface{}:
		return raw
	case string:
		out := map[string]interface{}{}
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return map[string]interface{}{}
		}
		return out
	case []byte:
		out := map[string]interface{}{}
		if err := json.Unmarshal(raw, &out); err != nil {
			return map[string]interface{}{}
		}
		return out
	default:
		data, err := json.Marshal(raw)
		if err != nil {
			return map[string]interface{}{}
		}
		out := map[string]interface{}{}
		if err := json.Unmarshal(data, &out); err != nil {
			return map[string]interface{}{}
		}
		return out
	}
}

func strFromAny(v interface{}) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func floatFromAny(v interface{}) (float64, bool) {
	switch typed := v.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case json.Number:
		f, err := typed.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func boolFromAny(v interface{}) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func strSliceFromAny(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s := strFromAny(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func metadataFromAny(v interface{}) map[string]string {
	raw, ok := v.(map[string]interface{})
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, item := range raw {
		if s, ok := item.(string); ok {
			out[k] = s
		}
	}
	return out
}
