// Package config holds the engine's tunables: thread-pool size, read-ahead
// cache sizing, sort-buffer budget. Defaults plus environment overrides.
package config

import (
	"os"
	"runtime"
	"strconv"
)

// Config is a flat, explicitly-constructed value — no package-level
// singleton.
type Config struct {
	// ThreadPoolSize bounds the fragment reader's parallel tile
	// fetch/decompress workers. It does not limit SubmitAsync goroutines.
	ThreadPoolSize int

	// ReadAheadCacheBytes bounds the VFS small-read cache.
	ReadAheadCacheBytes int64

	// SortBufferBytes bounds the unordered-layout sort buffer a sparse
	// fragment writer accumulates before flushing.
	SortBufferBytes int64

	// ConsolidationBufferCells bounds how many cells the consolidator
	// streams through memory at once.
	ConsolidationBufferCells int
}

const (
	defaultReadAheadCacheBytes      = 16 << 20 // 16 MiB
	defaultSortBufferBytes          = 10 << 20 // 10 MiB
	defaultConsolidationBufferCells = 1 << 16
)

// Default returns the baseline Config, then applies any ARRAYENGINE_*
// environment overrides.
func Default() Config {
	c := Config{
		ThreadPoolSize:           runtime.NumCPU(),
		ReadAheadCacheBytes:      defaultReadAheadCacheBytes,
		SortBufferBytes:          defaultSortBufferBytes,
		ConsolidationBufferCells: defaultConsolidationBufferCells,
	}
	c.applyEnv()
	return c
}

func (c *Config) applyEnv() {
	if v := envInt("ARRAYENGINE_THREADS"); v > 0 {
		c.ThreadPoolSize = v
	}
	if v := envInt64("ARRAYENGINE_READAHEAD_CACHE_BYTES"); v > 0 {
		c.ReadAheadCacheBytes = v
	}
	if v := envInt64("ARRAYENGINE_SORT_BUFFER_BYTES"); v > 0 {
		c.SortBufferBytes = v
	}
	if v := envInt("ARRAYENGINE_CONSOLIDATION_BUFFER_CELLS"); v > 0 {
		c.ConsolidationBufferCells = v
	}
}

func envInt(name string) int {
	if s := os.Getenv(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
	}
	return 0
}

func envInt64(name string) int64 {
	if s := os.Getenv(name); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v
		}
	}
	return 0
}
