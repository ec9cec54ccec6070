// Package json wraps the json-iterator library, configured to be compatible with the standard library.
package json

import (
	"bytes"
	stdjson "encoding/json"

	jsoniter "github.com/json-iterator/go"

	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

// nolint: gochecknoglobals
var api = jsoniter.ConfigCompatibleWithStandardLibrary

type RawMessage = jsoniter.RawMessage

// Encode the value, the pretty output is indented by two spaces on each nesting level.
func Encode(v any, pretty bool) ([]byte, error) {
	data, err := api.Marshal(v)
	if err != nil {
		return nil, errors.Errorf("json encoding error: %w", err)
	}
	if !pretty {
		return data, nil
	}

	// jsoniter doesn't indent values nested in an interface map
	var out bytes.Buffer
	if err := stdjson.Indent(&out, data, "", "  "); err != nil {
		return nil, errors.Errorf("json encoding error: %w", err)
	}
	return out.Bytes(), nil
}

func EncodeString(v any, pretty bool) (string, error) {
	data, err := Encode(v, pretty)
	return string(data), err
}

func MustEncode(v any, pretty bool) []byte {
	data, err := Encode(v, pretty)
	if err != nil {
		panic(err)
	}
	return data
}

func MustEncodeString(v any, pretty bool) string {
	return string(MustEncode(v, pretty))
}

func Decode(data []byte, v any) error {
	if err := api.Unmarshal(data, v); err != nil {
		return errors.Errorf("json decoding error: %w", err)
	}
	return nil
}

func DecodeString(data string, v any) error {
	return Decode([]byte(data), v)
}
