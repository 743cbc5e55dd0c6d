package recorder

import "github.com/gomind-labs/execrt/core"

// redactionMarker replaces a redacted field's value. It is a fixed
// string rather than an empty value so the field's presence is still
// visible to an operator reading a record.
const redactionMarker = "[REDACTED]"

// redactResponse returns a copy of resp with every field named in
// fields (anywhere in Payload/Metadata, including nested maps)
// replaced by redactionMarker. The original response is left
// untouched so the router's in-memory copy is unaffected.
func redactResponse(resp *core.AgentResponse, fields []string) *core.AgentResponse {
	if resp == nil || len(fields) == 0 {
		return resp
	}
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	out := *resp
	out.Payload = redactMap(resp.Payload, set)
	out.Metadata = redactMap(resp.Metadata, set)
	return &out
}

func redactMap(m map[string]core.Value, fields map[string]struct{}) map[string]core.Value {
	if m == nil {
		return nil
	}
	out := make(map[string]core.Value, len(m))
	for k, v := range m {
		if _, redact := fields[k]; redact {
			out[k] = redactionMarker
			continue
		}
		out[k] = redactValue(v, fields)
	}
	return out
}

func redactValue(v core.Value, fields map[string]struct{}) core.Value {
	switch t := v.(type) {
	case map[string]core.Value:
		return redactMap(t, fields)
	case []core.Value:
		out := make([]core.Value, len(t))
		for i, item := range t {
			out[i] = redactValue(item, fields)
		}
		return out
	default:
		return v
	}
}
