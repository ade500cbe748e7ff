// Package jsoncodec is the single JSON entry point of the binder. Envelopes,
// filter policies and queue policy documents all go through it.
package jsoncodec

import (
	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

// Valid reports whether data is a syntactically valid JSON document.
func Valid(data []byte) bool {
	return defaultConfig.Valid(data)
}

// Quote returns s encoded as a JSON string literal, quotes included.
func Quote(s string) (string, error) {
	data, err := defaultConfig.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// wireConfig encodes like the notification service does: no HTML escaping, so
// '<', '>' and '&' survive inside embedded payloads.
var wireConfig = sonic.Config{
	SortMapKeys:      true,
	CompactMarshaler: true,
	CopyString:       true,
	ValidateString:   true,
}.Froze()

// MarshalWire encodes v without HTML escaping.
func MarshalWire(v any) ([]byte, error) {
	return wireConfig.Marshal(v)
}
