package badger

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
)

// codec packs a run of grid values into a zstd-compressed byte column.
// Timestamps are implicit in the dense grid, so only values are encoded;
// the missing marker's bit pattern round-trips unchanged.
type codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newCodec() (*codec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	return &codec{encoder: encoder, decoder: decoder}, nil
}

// encodeValues serializes one chunk of the value column.
func (c *codec) encodeValues(values []float64) []byte {
	raw := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
	}
	return c.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4))
}

// decodeValues reverses encodeValues.
func (c *codec) decodeValues(data []byte) ([]float64, error) {
	raw, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress chunk: %w", err)
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("chunk payload is %d bytes, not a multiple of 8", len(raw))
	}
	values := make([]float64, len(raw)/8)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return values, nil
}

func (c *codec) close() {
	c.encoder.Close()
	c.decoder.Close()
}
