package codec

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/klauspost/compress/zstd"
)

// TextCodeInvalidPayload marks stored payloads the codec cannot read.
const TextCodeInvalidPayload = "INVALID_PAYLOAD"

// Payloads shorter than this are stored raw; compression would not pay off.
const minCompressSize = 128

const (
	frameRaw  byte = 0
	frameZstd byte = 1
)

// Zstd compresses the output of an inner codec. Every payload carries a one
// byte frame marker so small or incompressible payloads can be stored raw.
type Zstd struct {
	inner   Codec
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstd wraps inner with zstd compression at the default level.
func NewZstd(inner Codec) (*Zstd, error) {
	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, err
	}

	return &Zstd{inner: inner, encoder: encoder, decoder: decoder}, nil
}

func (z *Zstd) Marshal(v any) ([]byte, error) {
	data, err := z.inner.Marshal(v)
	if err != nil {
		return nil, err
	}

	if len(data) >= minCompressSize {
		out := make([]byte, 1, len(data)/2+1)
		out[0] = frameZstd
		out = z.encoder.EncodeAll(data, out)
		if len(out) < len(data)+1 {
			return out, nil
		}
	}

	out := make([]byte, 0, len(data)+1)
	out = append(out, frameRaw)
	return append(out, data...), nil
}

func (z *Zstd) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return goerrors.New("zstd codec: empty payload", goerrors.CategoryBadInput).
			WithTextCode(TextCodeInvalidPayload)
	}

	switch data[0] {
	case frameRaw:
		return z.inner.Unmarshal(data[1:], v)
	case frameZstd:
		raw, err := z.decoder.DecodeAll(data[1:], nil)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryBadInput, "zstd codec: decompress failed").
				WithTextCode(TextCodeInvalidPayload)
		}
		return z.inner.Unmarshal(raw, v)
	default:
		return goerrors.New("zstd codec: unknown frame marker", goerrors.CategoryBadInput).
			WithTextCode(TextCodeInvalidPayload).
			WithMetadata(map[string]any{"marker": data[0]})
	}
}

func (z *Zstd) Name() string { return "zstd+" + z.inner.Name() }

// Close releases the encoder and decoder.
func (z *Zstd) Close() {
	z.encoder.Close()
	z.decoder.Close()
}
