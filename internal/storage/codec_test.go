package storage

import (
	"math"
	"testing"
)

func TestEmbeddingCodecRoundTrip(t *testing.T) {
	in := []float32{0, 1, -1, 0.333333, 1e-20, -123.456, float32(math.Inf(1))}
	b := EncodeEmbedding(in)
	if len(b) != len(in)*4 {
		t.Fatalf("encoded len = %d, want %d", len(b), len(in)*4)
	}
	out, err := DecodeEmbedding(b, len(in))
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("component %d: %v != %v", i, in[i], out[i])
		}
	}
}

func TestEncodeEmbedding_LittleEndian(t *testing.T) {
	b := EncodeEmbedding([]float32{1})
	want := []byte{0x00, 0x00, 0x80, 0x3f}
	for i := range want {
		if b[i] != want[i] {
			t.Fatalf("bytes = % x, want % x", b, want)
		}
	}
}

func TestDecodeEmbedding_DimensionMismatch(t *testing.T) {
	b := EncodeEmbedding([]float32{1, 2, 3})
	if _, err := DecodeEmbedding(b, 4); err == nil {
		t.Error("expected error for mismatched dimension")
	}
	if _, err := DecodeEmbedding(b[:5], 1); err == nil {
		t.Error("expected error for truncated blob")
	}
}
