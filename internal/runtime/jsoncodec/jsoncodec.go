// Package jsoncodec wraps the sonic JSON engine behind the two operations the
// runtime needs (today only the IDENTIFY handshake payload). The
// std-compatible configuration keeps wire documents byte-compatible with
// encoding/json.
package jsoncodec

import "github.com/bytedance/sonic"

// Marshal encodes v with encoding/json-compatible semantics.
func Marshal(v any) ([]byte, error) {
	return sonic.ConfigStd.Marshal(v)
}

// Unmarshal decodes data into v with encoding/json-compatible semantics.
func Unmarshal(data []byte, v any) error {
	return sonic.ConfigStd.Unmarshal(data, v)
}
