/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sideinput

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/numaproj/dataflow/pkg/shared/kvs"
	"github.com/numaproj/dataflow/pkg/shared/logging"
)

type cached struct {
	value any
	found bool
}

// NearCache keeps the latest lookups of a store in a bounded LRU cache. Misses are cached too. Writes through the
// cache update it; writes made to the backing KV store by others are seen once Invalidate runs.
type NearCache struct {
	store Store
	cache *lru.Cache[string, cached]
}

var _ Store = (*NearCache)(nil)

// NewNearCache returns a cache of at most size lookups in front of the store.
func NewNearCache(store Store, size int) (*NearCache, error) {
	cache, err := lru.New[string, cached](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create the near cache, %w", err)
	}
	return &NearCache{store: store, cache: cache}, nil
}

func (n *NearCache) Name() string {
	return n.store.Name()
}

func (n *NearCache) Get(ctx context.Context, key any) (any, bool, error) {
	k := KeyString(key)
	if c, ok := n.cache.Get(k); ok {
		return c.value, c.found, nil
	}
	v, found, err := n.store.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	n.cache.Add(k, cached{value: v, found: found})
	return v, found, nil
}

// GetAll serves the cached keys and looks the others up in one batch.
func (n *NearCache) GetAll(ctx context.Context, keys []any) (map[any]any, error) {
	out := make(map[any]any, len(keys))
	var missing []any
	for _, key := range keys {
		if c, ok := n.cache.Get(KeyString(key)); ok {
			if c.found {
				out[key] = c.value
			}
			continue
		}
		missing = append(missing, key)
	}
	if len(missing) == 0 {
		return out, nil
	}
	fetched, err := n.store.GetAll(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, key := range missing {
		v, found := fetched[key]
		n.cache.Add(KeyString(key), cached{value: v, found: found})
		if found {
			out[key] = v
		}
	}
	return out, nil
}

func (n *NearCache) GetAsync(ctx context.Context, key any) <-chan Result {
	return getAsync(ctx, n, key)
}

func (n *NearCache) Put(ctx context.Context, key, value any) error {
	if err := n.store.Put(ctx, key, value); err != nil {
		return err
	}
	n.cache.Remove(KeyString(key))
	return nil
}

// Len returns the number of cached lookups.
func (n *NearCache) Len() int {
	return n.cache.Len()
}

// Invalidate evicts the keys changed in the KV store until the context is done. It blocks.
func (n *NearCache) Invalidate(ctx context.Context, kv kvs.KVStorer) {
	log := logging.FromContext(ctx).With("store", kv.GetStoreName())
	watchCh := kv.Watch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-watchCh:
			if !ok {
				log.Info("Near cache invalidation stopped")
				return
			}
			if entry == nil {
				continue
			}
			if entry.Operation() == kvs.KVPurge {
				log.Debugw("Purging near cache", zap.String("bucket", kv.GetStoreName()))
				n.cache.Purge()
				continue
			}
			log.Debugw("Evicting near cache entry", zap.String("key", entry.Key()), zap.String("op", entry.Operation().String()))
			n.cache.Remove(entry.Key())
		}
	}
}
