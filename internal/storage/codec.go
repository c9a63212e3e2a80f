package storage

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeEmbedding serializes vec as little-endian float32 values.
func EncodeEmbedding(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeEmbedding parses dim little-endian float32 values from b.
func DecodeEmbedding(b []byte, dim int) ([]float32, error) {
	if dim < 0 || len(b) != dim*4 {
		return nil, fmt.Errorf("embedding has %d bytes, expected %d for dimension %d", len(b), dim*4, dim)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
