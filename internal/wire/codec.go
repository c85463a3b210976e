package wire

import (
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// Codec profiles.
const (
	ProfileBase58 = "base58"
	ProfileBinary = "binary"
)

// MaxTransactionSize is the largest serialized transaction a node accepts.
const MaxTransactionSize = 1232

// BlobCodec encodes byte blobs for the channel. The profile is chosen once
// per deployment; both ends must agree.
type BlobCodec interface {
	Profile() string
	EncodeBlob(b []byte) (json.RawMessage, error)
	DecodeBlob(raw json.RawMessage) ([]byte, error)
}

// CodecFor returns the codec for a profile name.
func CodecFor(profile string) (BlobCodec, error) {
	switch profile {
	case ProfileBase58, "":
		return Base58Codec{}, nil
	case ProfileBinary:
		return BinaryCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec profile %q", profile)
	}
}

// Base58Codec carries blobs as base58 JSON strings. It is the profile for
// channels that only move text.
type Base58Codec struct{}

// Profile implements BlobCodec.
func (Base58Codec) Profile() string { return ProfileBase58 }

// EncodeBlob implements BlobCodec.
func (Base58Codec) EncodeBlob(b []byte) (json.RawMessage, error) {
	return json.Marshal(base58.Encode(b))
}

// DecodeBlob implements BlobCodec.
func (Base58Codec) DecodeBlob(raw json.RawMessage) ([]byte, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("base58 blob: %w", err)
	}
	if s == "" {
		return []byte{}, nil
	}
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("base58 blob: %w", err)
	}
	return b, nil
}

// BinaryCodec carries blobs as {"type":"Buffer","data":[...]}, the shape
// structured-clone channels produce for raw buffers.
type BinaryCodec struct{}

type bufferJSON struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}

// Profile implements BlobCodec.
func (BinaryCodec) Profile() string { return ProfileBinary }

// EncodeBlob implements BlobCodec.
func (BinaryCodec) EncodeBlob(b []byte) (json.RawMessage, error) {
	data := make([]int, len(b))
	for i, v := range b {
		data[i] = int(v)
	}
	return json.Marshal(bufferJSON{Type: "Buffer", Data: data})
}

// DecodeBlob implements BlobCodec.
func (BinaryCodec) DecodeBlob(raw json.RawMessage) ([]byte, error) {
	var buf bufferJSON
	if err := json.Unmarshal(raw, &buf); err != nil {
		return nil, fmt.Errorf("binary blob: %w", err)
	}
	if buf.Type != "Buffer" {
		return nil, fmt.Errorf("binary blob: unexpected type %q", buf.Type)
	}
	out := make([]byte, len(buf.Data))
	for i, v := range buf.Data {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("binary blob: byte %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	return out, nil
}
