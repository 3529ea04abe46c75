package connect

import (
	"encoding/json"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

var validate = validator.New()

// toStruct converts a JSON-tagged value into a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal message")
	}
	msg := &structpb.Struct{}
	if err := protojson.Unmarshal(data, msg); err != nil {
		return nil, errors.Wrap(err, "failed to convert message")
	}
	return msg, nil
}

// fromStruct decodes a protobuf Struct into a JSON-tagged value.
func fromStruct(msg *structpb.Struct, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     out,
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := dec.Decode(msg.AsMap()); err != nil {
		return errors.Wrap(err, "failed to decode message")
	}
	return nil
}

// decodeRequest decodes and validates a request message.
// Failures are reported as InvalidArgument.
func decodeRequest(msg *structpb.Struct, out any) error {
	if msg == nil {
		msg = &structpb.Struct{}
	}
	if err := fromStruct(msg, out); err != nil {
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := validate.Struct(out); err != nil {
		return connect.NewError(connect.CodeInvalidArgument, errors.Wrap(err, "invalid request"))
	}
	return nil
}

// newResponse wraps v into a Struct response.
func newResponse(v any) (*connect.Response[structpb.Struct], error) {
	msg, err := toStruct(v)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}
