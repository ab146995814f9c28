package bridge

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/drblury/puppets/internal/runtime/jsoncodec"
)

// Codec converts event arguments to message payloads and back. Arguments
// must be JSON-like values; numbers decode as float64.
type Codec interface {
	Name() string
	Encode(args []any) ([]byte, error)
	Decode(payload []byte) ([]any, error)
}

// Codec names carried in the puppets_codec header.
const (
	CodecJSON  = "json"
	CodecProto = "proto"
)

// JSONCodec encodes arguments as a JSON array.
type JSONCodec struct{}

func (JSONCodec) Name() string { return CodecJSON }

func (JSONCodec) Encode(args []any) ([]byte, error) {
	return jsoncodec.MarshalArgs(args)
}

func (JSONCodec) Decode(payload []byte) ([]any, error) {
	return jsoncodec.UnmarshalArgs(payload)
}

// ProtoCodec encodes arguments as a google.protobuf.ListValue.
type ProtoCodec struct{}

func (ProtoCodec) Name() string { return CodecProto }

func (ProtoCodec) Encode(args []any) ([]byte, error) {
	list, err := structpb.NewList(args)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(list)
}

func (ProtoCodec) Decode(payload []byte) ([]any, error) {
	var list structpb.ListValue
	if err := proto.Unmarshal(payload, &list); err != nil {
		return nil, err
	}
	return list.AsSlice(), nil
}

// CodecByName returns the codec registered under name. Empty selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecProto:
		return ProtoCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown bridge codec %q", name)
	}
}
