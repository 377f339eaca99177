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
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/numaproj/dataflow/pkg/shared/kvs"
)

// KVStore is a Store over a kvs.KVStorer. Keys are stored in their fmt.Sprint form and values as JSON, decoded
// into V.
type KVStore[V any] struct {
	kv          kvs.KVStorer
	concurrency int
}

var _ Store = (*KVStore[int])(nil)

// NewKVStore returns a store over the bucket.
func NewKVStore[V any](kv kvs.KVStorer) *KVStore[V] {
	return &KVStore[V]{kv: kv, concurrency: 8}
}

// KeyString returns the key under which a lookup key is stored.
func KeyString(key any) string {
	if s, ok := key.(string); ok {
		return s
	}
	return fmt.Sprint(key)
}

func (s *KVStore[V]) Name() string {
	return s.kv.GetStoreName()
}

func (s *KVStore[V]) Get(ctx context.Context, key any) (any, bool, error) {
	data, err := s.kv.GetValue(ctx, KeyString(key))
	if errors.Is(err, kvs.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %v from store %q, %w", key, s.Name(), err)
	}
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false, fmt.Errorf("failed to decode the value of key %v, %w", key, err)
	}
	return v, true, nil
}

// GetAll looks the keys up concurrently.
func (s *KVStore[V]) GetAll(ctx context.Context, keys []any) (map[any]any, error) {
	var lock sync.Mutex
	out := make(map[any]any, len(keys))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			v, ok, err := s.Get(gCtx, key)
			if err != nil || !ok {
				return err
			}
			lock.Lock()
			out[key] = v
			lock.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *KVStore[V]) GetAsync(ctx context.Context, key any) <-chan Result {
	return getAsync(ctx, s, key)
}

func (s *KVStore[V]) Put(ctx context.Context, key, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode the value of key %v, %w", key, err)
	}
	return s.kv.PutKV(ctx, KeyString(key), data)
}
