package rules

import (
	"fmt"
)

// ValidationError marks a config rejection. Handlers map it to HTTP 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + e.Msg
}

func invalidf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Validate checks a decoded config document and converts it to the typed
// Config. The document must be an object; each entry must be an object with
// a string channelId. Optional fields are typed through; mentions is
// filtered to string elements only.
func Validate(raw interface{}) (Config, error) {
	root, ok := raw.(map[string]interface{})
	if !ok {
		return nil, invalidf("top-level value must be an object, got %T", raw)
	}

	cfg := make(Config, len(root))
	for name, entry := range root {
		obj, ok := entry.(map[string]interface{})
		if !ok {
			return nil, invalidf("rule %q must be an object, got %T", name, entry)
		}

		channelID, ok := obj["channelId"].(string)
		if !ok || channelID == "" {
			return nil, invalidf("rule %q is missing a non-empty channelId", name)
		}

		rule := Rule{ChannelID: channelID}
		if v, ok := obj["suppressWindowMs"]; ok {
			rule.SuppressWindowMS = asInt64(v)
		}
		rule.ImportantLabels = asStringSlice(obj["importantLabels"])
		rule.HiddenLabels = asStringSlice(obj["hiddenLabels"])
		if v, ok := obj["thumbnailUrl"].(string); ok {
			rule.ThumbnailURL = v
		}
		rule.Mentions = asStringSlice(obj["mentions"])

		cfg[name] = rule
	}

	return cfg, nil
}

// asInt64 accepts the numeric shapes JSON and YAML decoders produce.
func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	default:
		return 0
	}
}

// asStringSlice keeps only string elements, dropping everything else.
func asStringSlice(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, el := range list {
		if s, ok := el.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ToRaw converts a typed Config back into the generic document shape used
// for persistence.
func ToRaw(cfg Config) map[string]interface{} {
	raw := make(map[string]interface{}, len(cfg))
	for name, rule := range cfg {
		entry := map[string]interface{}{"channelId": rule.ChannelID}
		if rule.SuppressWindowMS > 0 {
			entry["suppressWindowMs"] = rule.SuppressWindowMS
		}
		if len(rule.ImportantLabels) > 0 {
			entry["importantLabels"] = toInterfaceSlice(rule.ImportantLabels)
		}
		if len(rule.HiddenLabels) > 0 {
			entry["hiddenLabels"] = toInterfaceSlice(rule.HiddenLabels)
		}
		if rule.ThumbnailURL != "" {
			entry["thumbnailUrl"] = rule.ThumbnailURL
		}
		if len(rule.Mentions) > 0 {
			entry["mentions"] = toInterfaceSlice(rule.Mentions)
		}
		raw[name] = entry
	}
	return raw
}

func toInterfaceSlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
