package ipc

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/canv/types"
)

// ErrUnknownKind reports an envelope whose kind is not part of the protocol
// direction being decoded.
var ErrUnknownKind = errors.New("unknown message kind")

// envelope is the msgpack wire form of every message: the kind plus the
// msgpack-encoded body of the concrete message.
type envelope struct {
	Type types.MessageKind  `msgpack:"type"`
	Body msgpack.RawMessage `msgpack:"body"`
}

// EncodeRequest encodes a request envelope.
func EncodeRequest(req types.Request) ([]byte, error) {
	return encode(req.Kind(), req)
}

// EncodeResponse encodes a response envelope.
func EncodeResponse(resp types.Response) ([]byte, error) {
	return encode(resp.Kind(), resp)
}

func encode(kind types.MessageKind, msg any) ([]byte, error) {
	body, err := msgpack.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	payload, err := msgpack.Marshal(&envelope{Type: kind, Body: body})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", kind, err)
	}
	return payload, nil
}

// DecodeRequest decodes a request envelope.
func DecodeRequest(payload []byte) (types.Request, error) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		return nil, err
	}
	var req types.Request
	switch env.Type {
	case types.KindVersionRequest:
		req = &types.VersionRequest{}
	case types.KindOpenStreamRequest:
		req = &types.OpenStreamRequest{}
	case types.KindListReferenceDatasetsRequest:
		req = &types.ListReferenceDatasetsRequest{}
	case types.KindRegistrationRequest:
		req = &types.RegistrationRequest{}
	default:
		return nil, fmt.Errorf("%w: request %q", ErrUnknownKind, env.Type)
	}
	if err := decodeBody(env, req); err != nil {
		return nil, err
	}
	return req, nil
}

// DecodeResponse decodes a response envelope.
func DecodeResponse(payload []byte) (types.Response, error) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		return nil, err
	}
	var resp types.Response
	switch env.Type {
	case types.KindVersionResponse:
		resp = &types.VersionResponse{}
	case types.KindOpenStreamResponse:
		resp = &types.OpenStreamResponse{}
	case types.KindListReferenceDatasetsResponse:
		resp = &types.ListReferenceDatasetsResponse{}
	case types.KindRegistrationResult:
		resp = &types.RegistrationResult{}
	case types.KindRegistrationError:
		resp = &types.RegistrationError{}
	default:
		return nil, fmt.Errorf("%w: response %q", ErrUnknownKind, env.Type)
	}
	if err := decodeBody(env, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func decodeEnvelope(payload []byte) (*envelope, error) {
	var env envelope
	if err := msgpack.Unmarshal(payload, &env); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode envelope",
			Err:  err,
		}
	}
	return &env, nil
}

func decodeBody(env *envelope, v any) error {
	if err := msgpack.Unmarshal(env.Body, v); err != nil {
		return &FrameError{
			Kind: FrameErrorDecode,
			Msg:  fmt.Sprintf("failed to decode %s", env.Type),
			Err:  err,
		}
	}
	return nil
}
