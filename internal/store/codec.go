package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifiers as written to array metadata.
const (
	CodecZstd = "zstd"
	CodecLZ4  = "lz4"
	CodecS2   = "s2"
	CodecNone = "none"
)

// Codec compresses whole chunks. Implementations are safe for concurrent use
// and deterministic: equal input and level give equal output.
type Codec interface {
	ID() string
	Level() int
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte, size int) ([]byte, error)
}

// NewCodec returns the codec for id at the given level.
func NewCodec(id string, level int) (Codec, error) {
	switch id {
	case CodecZstd:
		return newZstdCodec(level)
	case CodecLZ4:
		return lz4Codec{level: level}, nil
	case CodecS2:
		return s2Codec{level: level}, nil
	case CodecNone, "":
		return noopCodec{}, nil
	}
	return nil, fmt.Errorf("unsupported compression codec %q", id)
}

type zstdCodec struct {
	level    int
	encoders sync.Pool
	decoders sync.Pool
}

func newZstdCodec(level int) (*zstdCodec, error) {
	if level < 1 || level > 22 {
		return nil, fmt.Errorf("zstd level %d out of range 1-22", level)
	}
	c := &zstdCodec{level: level}
	encLevel := zstd.EncoderLevelFromZstd(level)
	c.encoders.New = func() any {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(encLevel),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			panic(fmt.Sprintf("create zstd encoder: %v", err))
		}
		return enc
	}
	c.decoders.New = func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("create zstd decoder: %v", err))
		}
		return dec
	}
	return c, nil
}

func (c *zstdCodec) ID() string { return CodecZstd }
func (c *zstdCodec) Level() int { return c.level }

func (c *zstdCodec) Compress(data []byte) ([]byte, error) {
	enc := c.encoders.Get().(*zstd.Encoder)
	defer c.encoders.Put(enc)
	return enc.EncodeAll(data, nil), nil
}

func (c *zstdCodec) Decompress(data []byte, size int) ([]byte, error) {
	dec := c.decoders.Get().(*zstd.Decoder)
	defer c.decoders.Put(dec)
	out, err := dec.DecodeAll(data, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}

var lz4Compressors = sync.Pool{New: func() any { return &lz4.Compressor{} }}

type lz4Codec struct{ level int }

func (c lz4Codec) ID() string { return CodecLZ4 }
func (c lz4Codec) Level() int { return c.level }

func (c lz4Codec) Compress(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	if c.level > 0 {
		hc := lz4.CompressorHC{Level: lz4.CompressionLevel(1 << (8 + min(c.level, 9)))}
		n, err := hc.CompressBlock(data, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		return dst[:n], nil
	}
	lc := lz4Compressors.Get().(*lz4.Compressor)
	defer lz4Compressors.Put(lc)
	n, err := lc.CompressBlock(data, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	return dst[:n], nil
}

func (c lz4Codec) Decompress(data []byte, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := lz4.UncompressBlock(data, buf)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return buf[:n], nil
}

type s2Codec struct{ level int }

func (c s2Codec) ID() string { return CodecS2 }
func (c s2Codec) Level() int { return c.level }

func (c s2Codec) Compress(data []byte) ([]byte, error) {
	switch {
	case c.level >= 3:
		return s2.EncodeBest(nil, data), nil
	case c.level == 2:
		return s2.EncodeBetter(nil, data), nil
	}
	return s2.Encode(nil, data), nil
}

func (c s2Codec) Decompress(data []byte, _ int) ([]byte, error) {
	out, err := s2.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("s2 decompress: %w", err)
	}
	return out, nil
}

type noopCodec struct{}

func (noopCodec) ID() string { return CodecNone }
func (noopCodec) Level() int { return 0 }

func (noopCodec) Compress(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (noopCodec) Decompress(data []byte, size int) ([]byte, error) {
	if len(data) != size {
		return nil, errors.New("uncompressed chunk has unexpected size")
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
