package backend

import (
	"encoding/binary"
	"slices"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
)

const DefaultPrefixCacheCapacity = 64

type cachedLogits struct {
	tokens []int
	logits []float32
}

// CacheStats counts prefix cache lookups.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Len    int
}

// PrefixCache remembers the logits of recently seen sequences. Sequences
// are keyed by an xxhash of their ids and compared in full on lookup, so a
// hash collision is a miss.
type PrefixCache struct {
	m      Model
	cache  *ttlcache.Cache[uint64, cachedLogits]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewPrefixCache wraps m. capacity <= 0 selects DefaultPrefixCacheCapacity
// and ttl <= 0 keeps entries until they are evicted by capacity.
func NewPrefixCache(m Model, capacity int, ttl time.Duration) *PrefixCache {
	if capacity <= 0 {
		capacity = DefaultPrefixCacheCapacity
	}
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[uint64, cachedLogits](ttl),
		ttlcache.WithCapacity[uint64, cachedLogits](uint64(capacity)),
		ttlcache.WithDisableTouchOnHit[uint64, cachedLogits](),
	)
	return &PrefixCache{m: m, cache: cache}
}

// SequenceHash computes the cache key for a token sequence.
func SequenceHash(tokens []int) uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, t := range tokens {
		binary.LittleEndian.PutUint64(buf[:], uint64(t))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

func (c *PrefixCache) Forward(tokens []int) ([]float32, error) {
	key := SequenceHash(tokens)
	if item := c.cache.Get(key); item != nil {
		if v := item.Value(); slices.Equal(v.tokens, tokens) {
			c.hits.Add(1)
			return v.logits, nil
		}
	}
	c.misses.Add(1)
	logits, err := c.m.Forward(tokens)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, cachedLogits{tokens: slices.Clone(tokens), logits: logits}, ttlcache.DefaultTTL)
	return logits, nil
}

func (c *PrefixCache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Len: c.cache.Len()}
}

func (c *PrefixCache) VocabSize() int     { return c.m.VocabSize() }
func (c *PrefixCache) ContextLength() int { return ContextLengthOf(c.m) }
func (c *PrefixCache) Reentrant() bool    { return IsReentrant(c.m) }

func (c *PrefixCache) Close() error {
	c.cache.DeleteAll()
	return Close(c.m)
}
