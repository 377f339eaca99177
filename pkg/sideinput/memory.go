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
	"sync"
)

// MemoryStore is a Store backed by a map.
type MemoryStore struct {
	name string
	lock sync.RWMutex
	data map[any]any
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a store holding a copy of the initial content.
func NewMemoryStore(name string, initial map[any]any) *MemoryStore {
	data := make(map[any]any, len(initial))
	for k, v := range initial {
		data[k] = v
	}
	return &MemoryStore{name: name, data: data}
}

func (m *MemoryStore) Name() string {
	return m.name
}

func (m *MemoryStore) Get(_ context.Context, key any) (any, bool, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) GetAll(_ context.Context, keys []any) (map[any]any, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	out := make(map[any]any, len(keys))
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *MemoryStore) GetAsync(ctx context.Context, key any) <-chan Result {
	return getAsync(ctx, m, key)
}

func (m *MemoryStore) Put(_ context.Context, key, value any) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.data[key] = value
	return nil
}
