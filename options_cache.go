package opts

import "sync"

// ProgramCache stores compiled expression programs keyed by expression strings.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// WithProgramCache registers a program cache shared by the rule evaluators.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *engineConfig) {
		cfg.programCache = cache
	}
}

type mapProgramCache struct {
	entries sync.Map
}

// NewProgramCache returns a concurrency-safe in-memory ProgramCache.
func NewProgramCache() ProgramCache {
	return &mapProgramCache{}
}

func (c *mapProgramCache) Get(key string) (any, bool) {
	return c.entries.Load(key)
}

func (c *mapProgramCache) Set(key string, value any) {
	c.entries.Store(key, value)
}

// prefixedCache partitions one cache between evaluators so that programs
// compiled by different engines never collide on the same expression.
type prefixedCache struct {
	prefix string
	inner  ProgramCache
}

func partitionCache(cache ProgramCache, engine string) ProgramCache {
	if cache == nil {
		return nil
	}
	return prefixedCache{prefix: engine + ":", inner: cache}
}

func (c prefixedCache) Get(key string) (any, bool) {
	return c.inner.Get(c.prefix + key)
}

func (c prefixedCache) Set(key string, value any) {
	c.inner.Set(c.prefix+key, value)
}
