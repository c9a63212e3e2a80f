package embedding

import (
	"context"
	"testing"
)

func BenchmarkEmbedderEmbed(b *testing.B) {
	e := NewEmbedder(NewLockedEngine(NewMockEngine(768)), 256, 512)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "benchmark query text for embedding")
	}
}
