package vector

import (
	"math/rand"
	"testing"
)

func benchIndex(b *testing.B, n, dim int) (*Index, []float32) {
	b.Helper()
	idx, err := NewIndex(dim, n, -1)
	if err != nil {
		b.Fatal(err)
	}
	rng := rand.New(rand.NewSource(1))
	vec := make([]float32, dim)
	for i := 0; i < n; i++ {
		for j := range vec {
			vec[j] = rng.Float32()*2 - 1
		}
		idx.Upsert(int64(i+1), vec)
	}
	query := make([]float32, dim)
	for j := range query {
		query[j] = rng.Float32()*2 - 1
	}
	return idx, query
}

func BenchmarkIndexSearch(b *testing.B) {
	idx, query := benchIndex(b, 10000, 256)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = idx.Search(query, 20)
	}
}

func BenchmarkIndexUpsertEvicting(b *testing.B) {
	idx, vec := benchIndex(b, 1000, 256)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx.Upsert(int64(1000+i+1), vec)
	}
}
