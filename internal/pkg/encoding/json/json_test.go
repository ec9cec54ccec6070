package json

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testValue struct {
	Name    string `json:"name"`
	Payload []byte `json:"payload"`
}

func TestEncodeDecode_Bytes(t *testing.T) {
	t.Parallel()

	in := testValue{Name: "foo", Payload: []byte{0, 1, 2, 255}}
	str, err := EncodeString(in, false)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"foo","payload":"AAEC/w=="}`, str)

	var out testValue
	require.NoError(t, DecodeString(str, &out))
	assert.Equal(t, in, out)
}

func TestEncode_PrettyNested(t *testing.T) {
	t.Parallel()

	var decoded any
	require.NoError(t, DecodeString(`{"sender": "node1", "acks": [1, 2], "meta": {"tags": ["a"]}}`, &decoded))

	str, err := EncodeString(decoded, true)
	require.NoError(t, err)
	assert.Equal(t, `{
  "acks": [
    1,
    2
  ],
  "meta": {
    "tags": [
      "a"
    ]
  },
  "sender": "node1"
}`, str)
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()

	var out testValue
	err := DecodeString(`{"name":`, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json decoding error")
}
