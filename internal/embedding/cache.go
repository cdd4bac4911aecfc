package embedding

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// CachedEmbedder wraps an Embedder with a content-addressed disk cache
// keyed by sha256("{task_type}:{context}:{text}:{D}"), grounded on
// spaces.go's raw little-endian float32 cache format (VecAsBytes /
// binary.Write/Read), generalized from a one-shot centroid cache into a
// general per-call cache keyed on the full embedding request shape.
// The cache directory is segmented by a filesystem-safe encoding of the
// model identifier, so switching models transparently invalidates entries.
type CachedEmbedder struct {
	inner    *Embedder
	cacheDir string
}

// NewCachedEmbedder wraps inner with an on-disk cache rooted at cacheDir.
func NewCachedEmbedder(inner *Embedder, cacheDir string) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cacheDir: cacheDir}
}

func (c *CachedEmbedder) Dims() int    { return c.inner.Dims() }
func (c *CachedEmbedder) Name() string { return c.inner.Name() }

// EmbedDocument returns a cached vector if present, else embeds, caches,
// and returns the result.
func (c *CachedEmbedder) EmbedDocument(text, context string) ([]float32, error) {
	key := cacheKey(TaskDocument, context, text, c.inner.Dims())
	if v, ok := c.load(key); ok {
		return v, nil
	}
	v, err := c.inner.EmbedDocument(text, context)
	if err != nil {
		return nil, err
	}
	c.store(key, v)
	return v, nil
}

// EmbedQuery returns a cached vector if present, else embeds, caches, and
// returns the result. Queries carry no context.
func (c *CachedEmbedder) EmbedQuery(text string) ([]float32, error) {
	key := cacheKey(TaskQuery, "", text, c.inner.Dims())
	if v, ok := c.load(key); ok {
		return v, nil
	}
	v, err := c.inner.EmbedQuery(text)
	if err != nil {
		return nil, err
	}
	c.store(key, v)
	return v, nil
}

// EmbedBatch fills from cache where possible and asks the inner embedder
// for the remaining misses in one call, preserving input order.
func (c *CachedEmbedder) EmbedBatch(texts []string, contexts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	var missContexts []string

	for i, t := range texts {
		ctx := ""
		if contexts != nil {
			ctx = contexts[i]
		}
		key := cacheKey(TaskDocument, ctx, t, c.inner.Dims())
		if v, ok := c.load(key); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
		if contexts != nil {
			missContexts = append(missContexts, ctx)
		}
	}

	if len(missTexts) > 0 {
		var ctxArg []string
		if contexts != nil {
			ctxArg = missContexts
		}
		vecs, err := c.inner.EmbedBatch(missTexts, ctxArg)
		if err != nil {
			return nil, err
		}
		for j, idx := range missIdx {
			out[idx] = vecs[j]
			ctx := ""
			if contexts != nil {
				ctx = contexts[idx]
			}
			c.store(cacheKey(TaskDocument, ctx, texts[idx], c.inner.Dims()), vecs[j])
		}
	}
	return out, nil
}

func cacheKey(task TaskType, context, text string, dims int) string {
	raw := fmt.Sprintf("%s:%s:%s:%d", task, context, text, dims)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) segmentDir() string {
	return filepath.Join(c.cacheDir, sanitizeModelID(c.inner.Name()))
}

// path fans cache entries out across 256 shard directories so a model's
// segment directory never holds a single flat listing of every cached
// vector. The shard is a fast non-cryptographic-strength digest of the
// key; sha256 (cacheKey) remains the actual identity of the entry.
func (c *CachedEmbedder) path(key string) string {
	return filepath.Join(c.segmentDir(), shard(key), key+".bin")
}

func shard(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:1])
}

func (c *CachedEmbedder) load(key string) ([]float32, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}
	return bytesToVec(data), true
}

func (c *CachedEmbedder) store(key string, v []float32) {
	dir := filepath.Join(c.segmentDir(), shard(key))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	_ = os.WriteFile(c.path(key), VecAsBytes(v), 0o644)
}

// sanitizeModelID maps a model identifier to a filesystem-safe directory
// name, replacing anything but alphanumerics, '-', and '_' with '_'.
func sanitizeModelID(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// VecAsBytes converts a float32 vector to its raw little-endian byte
// layout, the wire/disk format for embeddings in both the cache and the
// index's embeddings.vector BLOB column.
func VecAsBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// BytesToVec is the inverse of VecAsBytes.
func BytesToVec(data []byte) []float32 {
	return bytesToVec(data)
}

func bytesToVec(data []byte) []float32 {
	v := make([]float32, len(data)/4)
	for i := range v {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		v[i] = math.Float32frombits(bits)
	}
	return v
}
