package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cachingEmbedder memoizes embedding calls keyed by (model, input). Repeated
// indexing of unchanged files and repeated queries skip the provider entirely.
type cachingEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachingEmbedder wraps an Embedder with an LRU cache of the given size.
func NewCachingEmbedder(inner Embedder, size int) Embedder {
	if size <= 0 {
		size = 2048
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return inner
	}
	return &cachingEmbedder{inner: inner, cache: c}
}

func (c *cachingEmbedder) Embeddings(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	var missIdx []int
	var missTexts []string
	for i, in := range inputs {
		if v, ok := c.cache.Get(cacheKey(model, in)); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, in)
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	vecs, err := c.inner.Embeddings(ctx, model, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		// provider returned a short batch; serve what we have uncached
		return c.inner.Embeddings(ctx, model, inputs)
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.cache.Add(cacheKey(model, inputs[i]), vecs[j])
	}
	return out, nil
}

func cacheKey(model, input string) string {
	h := sha256.Sum256([]byte(model + "\x00" + input))
	return hex.EncodeToString(h[:])
}
