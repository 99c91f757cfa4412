package config

import (
	"strings"

	"gopkg.in/yaml.v3"
)

const maskedValue = "******"

var secretWords = []string{"password", "secret", "token", "dsn"}

// Masked returns a copy of c with secret-looking option values replaced.
func (c Config) Masked() Config {
	out := c
	out.Storage.Options = maskOptions(c.Storage.Options)
	out.Sinks = make([]SinkConfig, len(c.Sinks))
	for i, s := range c.Sinks {
		s.Options = maskOptions(s.Options)
		out.Sinks[i] = s
	}
	return out
}

// YAML renders the masked configuration.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Masked())
}

func maskOptions(options map[string]any) map[string]any {
	if options == nil {
		return nil
	}
	out := make(map[string]any, len(options))
	for k, v := range options {
		switch {
		case isSecret(k):
			out[k] = maskedValue
		default:
			if nested, ok := v.(map[string]any); ok {
				out[k] = maskOptions(nested)
			} else {
				out[k] = v
			}
		}
	}
	return out
}

func isSecret(key string) bool {
	key = strings.ToLower(key)
	for _, w := range secretWords {
		if strings.Contains(key, w) {
			return true
		}
	}
	return strings.HasSuffix(key, "key")
}
