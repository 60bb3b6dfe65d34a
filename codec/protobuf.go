package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Proto encodes rows as a google.protobuf.Struct of string values.
// Useful when rows are shared with non-Go readers.
type Proto struct{}

var _ Codec = Proto{}

func (Proto) Encode(r Row) ([]byte, error) {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(r))}
	for k, v := range r {
		s.Fields[k] = structpb.NewStringValue(v)
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(s)
}

func (Proto) Decode(b []byte) (Row, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	r := make(Row, len(s.Fields))
	for k, v := range s.Fields {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("codec: field %q is not a string", k)
		}
		r[k] = sv.StringValue
	}
	return r, nil
}
