package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecsRoundTripJSONLikeValues(t *testing.T) {
	args := []any{
		"sandwich",
		float64(200),
		true,
		nil,
		map[string]any{"user": "alice", "tags": []any{"a", "b"}},
	}

	for _, codec := range []Codec{JSONCodec{}, ProtoCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			payload, err := codec.Encode(args)
			require.NoError(t, err)

			decoded, err := codec.Decode(payload)
			require.NoError(t, err)
			assert.Equal(t, args, decoded)
		})
	}
}

func TestCodecsTurnIntegersIntoFloats(t *testing.T) {
	for _, codec := range []Codec{JSONCodec{}, ProtoCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			payload, err := codec.Encode([]any{7})
			require.NoError(t, err)

			decoded, err := codec.Decode(payload)
			require.NoError(t, err)
			assert.Equal(t, []any{float64(7)}, decoded)
		})
	}
}

func TestProtoCodecRejectsUnsupportedValues(t *testing.T) {
	_, err := ProtoCodec{}.Encode([]any{struct{}{}})
	assert.Error(t, err)
}

func TestCodecByName(t *testing.T) {
	codec, err := CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, CodecJSON, codec.Name())

	codec, err = CodecByName(CodecProto)
	require.NoError(t, err)
	assert.Equal(t, CodecProto, codec.Name())

	_, err = CodecByName("xml")
	assert.Error(t, err)
}
