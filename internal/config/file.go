package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileValues is a YAML config file flattened to the same keys as the
// environment, for example:
//
//	AERO_ROOM_RELAY_LISTEN_ADDR: 0.0.0.0:8080
//	ALLOWED_ORIGINS:
//	  - https://app.example.com
//	SIGNALING_WS_IDLE_TIMEOUT: 90s
type fileValues map[string]string

func readFileValues(path string) (fileValues, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return parseFileValues(raw)
}

func parseFileValues(raw []byte) (fileValues, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	out := make(fileValues, len(doc))
	for key, v := range doc {
		s, err := scalarString(v)
		if err != nil {
			return nil, fmt.Errorf("config file key %s: %w", key, err)
		}
		out[strings.TrimSpace(key)] = s
	}
	return out, nil
}

func (f fileValues) lookup(key string) (string, bool) {
	v, ok := f[key]
	return v, ok
}

// scalarString renders a YAML value the way it would be written in an env
// var. Sequences become comma-separated lists.
func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			s, err := scalarString(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	default:
		return "", fmt.Errorf("unsupported value of type %T", v)
	}
}
