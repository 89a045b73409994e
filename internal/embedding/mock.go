package embedding

import (
	"context"
	"crypto/sha256"
)

// MockClient returns deterministic pseudo-embeddings derived from the input
// hash. Useful for local development without an embedding service.
type MockClient struct {
	dims int
}

func NewMockClient(dims int) *MockClient {
	if dims <= 0 {
		dims = 1536
	}
	return &MockClient{dims: dims}
}

func (c *MockClient) Embed(_ context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, c.dims)
	for i := range vec {
		b := sum[i%len(sum)]
		vec[i] = float32(b)/255.0 - 0.5
	}
	return vec, nil
}
