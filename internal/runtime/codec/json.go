package codec

import (
	"io"

	"github.com/bytedance/sonic"
)

var jsonConfig = sonic.ConfigStd

// MarshalJSON encodes v with the shared sonic configuration.
func MarshalJSON(v any) ([]byte, error) {
	return jsonConfig.Marshal(v)
}

// MarshalJSONIndent is MarshalJSON with indentation.
func MarshalJSONIndent(v any, prefix, indent string) ([]byte, error) {
	return jsonConfig.MarshalIndent(v, prefix, indent)
}

// UnmarshalJSON decodes data into v with the shared sonic configuration.
func UnmarshalJSON(data []byte, v any) error {
	return jsonConfig.Unmarshal(data, v)
}

// EncodeJSON streams v to w as a single JSON document.
func EncodeJSON(w io.Writer, v any) error {
	return jsonConfig.NewEncoder(w).Encode(v)
}
