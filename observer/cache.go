package observer

import (
	"context"

	"github.com/nevindra/recall"
)

// ObservedCache wraps a recall.ResultCache, counting hits and misses.
type ObservedCache struct {
	inner recall.ResultCache
	inst  *Instruments
}

var _ recall.ResultCache = (*ObservedCache)(nil)

// WrapCache returns an instrumented cache.
func WrapCache(inner recall.ResultCache, inst *Instruments) *ObservedCache {
	return &ObservedCache{inner: inner, inst: inst}
}

func (o *ObservedCache) Get(key string) (any, bool) {
	v, ok := o.inner.Get(key)
	if ok {
		o.inst.CacheHits.Add(context.Background(), 1)
	} else {
		o.inst.CacheMisses.Add(context.Background(), 1)
	}
	return v, ok
}

func (o *ObservedCache) Set(key, projectID string, value any) {
	o.inner.Set(key, projectID, value)
}

func (o *ObservedCache) InvalidateProject(projectID string) {
	o.inner.InvalidateProject(projectID)
}
