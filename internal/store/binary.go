package store

import (
	"encoding/binary"
	"fmt"
	"math"
)

// encodeFloat32s serializes values as little-endian IEEE 754 singles.
func encodeFloat32s(values []float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func decodeFloat32s(data []byte, n int) ([]float32, error) {
	if len(data) != 4*n {
		return nil, fmt.Errorf("chunk holds %d bytes, want %d", len(data), 4*n)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return out, nil
}

func nanSlice(n int) []float32 {
	nan := float32(math.NaN())
	out := make([]float32, n)
	for i := range out {
		out[i] = nan
	}
	return out
}
