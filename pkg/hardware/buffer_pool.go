package hardware

import (
	"sync"
	"sync/atomic"

	"github.com/dougsko/pagerd/pkg/logging"
)

// IQChunk is a reusable block of IQ samples handed to a sample sink
type IQChunk struct {
	Data []complex64
	Size int
	pool *ChunkPool
}

// Reset clears the chunk for reuse
func (c *IQChunk) Reset() {
	for i := range c.Data {
		c.Data[i] = 0
	}
	c.Size = 0
}

// Release returns the chunk to its pool
func (c *IQChunk) Release() {
	if c.pool != nil {
		c.pool.Put(c)
	}
}

// ChunkPool manages pools of IQ chunks for the common sub-chunk sizes
type ChunkPool struct {
	smallPool  *sync.Pool // <= 1024 samples
	mediumPool *sync.Pool // <= 4096 samples
	largePool  *sync.Pool // <= 16384 samples

	smallHits  int64
	mediumHits int64
	largeHits  int64
	smallMiss  int64
	mediumMiss int64
	largeMiss  int64

	maxChunkSize     int
	enableStatistics bool
}

func newTier(size int, miss *int64, pool *ChunkPool) *sync.Pool {
	return &sync.Pool{
		New: func() interface{} {
			if pool.enableStatistics {
				atomic.AddInt64(miss, 1)
			}
			return &IQChunk{
				Data: make([]complex64, size),
				pool: pool,
			}
		},
	}
}

// NewChunkPool creates a chunk pool with size-based sub-pools
func NewChunkPool(maxChunkSize int, enableStats bool) *ChunkPool {
	pool := &ChunkPool{
		maxChunkSize:     maxChunkSize,
		enableStatistics: enableStats,
	}

	pool.smallPool = newTier(1024, &pool.smallMiss, pool)
	pool.mediumPool = newTier(4096, &pool.mediumMiss, pool)
	pool.largePool = newTier(16384, &pool.largeMiss, pool)

	return pool
}

// Get retrieves a chunk of exactly size samples
func (p *ChunkPool) Get(size int) *IQChunk {
	if size <= 0 {
		logging.Warnf("hardware", "ChunkPool: invalid chunk size requested: %d", size)
		return &IQChunk{
			Data: make([]complex64, 0, 1024),
			pool: p,
		}
	}

	if size > p.maxChunkSize || size > 16384 {
		logging.Debugf("hardware", "ChunkPool: size %d exceeds pooled sizes, allocating directly", size)
		return &IQChunk{
			Data: make([]complex64, size),
			Size: size,
			pool: p,
		}
	}

	var chunk *IQChunk

	switch {
	case size <= 1024:
		chunk = p.smallPool.Get().(*IQChunk)
		if p.enableStatistics {
			atomic.AddInt64(&p.smallHits, 1)
		}
	case size <= 4096:
		chunk = p.mediumPool.Get().(*IQChunk)
		if p.enableStatistics {
			atomic.AddInt64(&p.mediumHits, 1)
		}
	default:
		chunk = p.largePool.Get().(*IQChunk)
		if p.enableStatistics {
			atomic.AddInt64(&p.largeHits, 1)
		}
	}

	if cap(chunk.Data) < size {
		chunk.Data = make([]complex64, size)
	}

	chunk.Data = chunk.Data[:size]
	chunk.Size = size

	return chunk
}

// Put returns a chunk to the pool that matches its capacity
func (p *ChunkPool) Put(chunk *IQChunk) {
	if chunk == nil || chunk.Data == nil {
		return
	}

	chunk.Reset()

	switch capacity := cap(chunk.Data); {
	case capacity == 1024:
		p.smallPool.Put(chunk)
	case capacity == 4096:
		p.mediumPool.Put(chunk)
	case capacity == 16384:
		p.largePool.Put(chunk)
	default:
		// Odd sizes are left to the garbage collector
	}
}

// GetStatistics returns current pool utilization statistics
func (p *ChunkPool) GetStatistics() map[string]int64 {
	if !p.enableStatistics {
		return map[string]int64{}
	}

	return map[string]int64{
		"small_hits":  atomic.LoadInt64(&p.smallHits),
		"medium_hits": atomic.LoadInt64(&p.mediumHits),
		"large_hits":  atomic.LoadInt64(&p.largeHits),
		"small_miss":  atomic.LoadInt64(&p.smallMiss),
		"medium_miss": atomic.LoadInt64(&p.mediumMiss),
		"large_miss":  atomic.LoadInt64(&p.largeMiss),
	}
}

// logStatistics writes a one line pool summary
func (p *ChunkPool) logStatistics() {
	stats := p.GetStatistics()

	totalHits := stats["small_hits"] + stats["medium_hits"] + stats["large_hits"]
	totalMiss := stats["small_miss"] + stats["medium_miss"] + stats["large_miss"]
	if totalHits == 0 {
		return
	}

	reuse := float64(totalHits-totalMiss) / float64(totalHits) * 100
	logging.Debugf("hardware", "ChunkPool: %d chunks, %.1f%% reused (S:%d/%d M:%d/%d L:%d/%d)",
		totalHits, reuse,
		stats["small_hits"], stats["small_miss"],
		stats["medium_hits"], stats["medium_miss"],
		stats["large_hits"], stats["large_miss"])
}
