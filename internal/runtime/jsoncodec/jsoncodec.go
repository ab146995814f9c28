package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

// Encode writes v followed by a newline, the way the inspector answers.
func Encode(w io.Writer, v any) error {
	return defaultConfig.NewEncoder(w).Encode(v)
}

// MarshalArgs encodes an event argument list as a JSON array. A nil list
// encodes as an empty array.
func MarshalArgs(args []any) ([]byte, error) {
	if args == nil {
		args = []any{}
	}
	return defaultConfig.Marshal(args)
}

// UnmarshalArgs decodes a JSON array produced by MarshalArgs. Numbers decode
// as float64 and objects as map[string]any.
func UnmarshalArgs(data []byte) ([]any, error) {
	var args []any
	if err := defaultConfig.Unmarshal(data, &args); err != nil {
		return nil, err
	}
	return args, nil
}
