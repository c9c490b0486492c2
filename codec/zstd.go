package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Zstd wraps another codec and zstd-compresses its output.
//
// The badger backend uses it when compression is enabled; per-document blobs
// stay self-contained, so a store created with compression must always be
// reopened with it.
type Zstd struct {
	inner   Codec
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstd returns a Zstd codec wrapping inner. A nil inner wraps Default.
func NewZstd(inner Codec) (*Zstd, error) {
	if inner == nil {
		inner = Default
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("codec: failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("codec: failed to create zstd decoder: %w", err)
	}
	return &Zstd{inner: inner, encoder: enc, decoder: dec}, nil
}

// Marshal encodes the value with the inner codec and compresses the result.
func (c *Zstd) Marshal(v any) ([]byte, error) {
	b, err := c.inner.Marshal(v)
	if err != nil {
		return nil, err
	}
	return c.encoder.EncodeAll(b, nil), nil
}

// Unmarshal decompresses the data and decodes it with the inner codec.
func (c *Zstd) Unmarshal(data []byte, v any) error {
	b, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("codec: zstd decode failed: %w", err)
	}
	return c.inner.Unmarshal(b, v)
}

// Name returns the composed codec name, e.g. "zstd+go-json".
func (c *Zstd) Name() string { return "zstd+" + c.inner.Name() }
