package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// GetByPath retrieves a config value by dot-notation path (e.g. "inference.chatModel").
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := toMap(cfg)
	if err != nil {
		return nil, err
	}

	var current any = m
	for _, key := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[key]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", path)
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("invalid array index: %s", key)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("cannot traverse into %T at %s", current, key)
		}
	}
	return current, nil
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Sanitize returns a copy of the config with secrets masked.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.Telegram.AllowFrom = append(FlexStringList(nil), cfg.Telegram.AllowFrom...)
	if out.Telegram.Token != "" {
		out.Telegram.Token = maskString(out.Telegram.Token)
	}
	if out.Inference.APIKey != "" {
		out.Inference.APIKey = maskString(out.Inference.APIKey)
	}
	return &out
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
