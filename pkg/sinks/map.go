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

package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/numaproj/dataflow/pkg/datamodel"
	"github.com/numaproj/dataflow/pkg/window"
)

// MapSink puts the items into a map. Items are datamodel.Entry or window.KeyedWindowResult, a later put of a key
// replaces the earlier one, which makes the sink idempotent.
type MapSink struct {
	name  string
	lock  sync.RWMutex
	items map[any]any
}

// NewMapSink returns an empty map sink.
func NewMapSink(name string) *MapSink {
	return &MapSink{name: name, items: make(map[any]any)}
}

func (s *MapSink) Name() string {
	return s.name
}

func (s *MapSink) Idempotent() bool {
	return true
}

// Get returns the value of the key.
func (s *MapSink) Get(key any) (any, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Snapshot returns a copy of the content.
func (s *MapSink) Snapshot() map[any]any {
	s.lock.RLock()
	defer s.lock.RUnlock()
	out := make(map[any]any, len(s.items))
	for k, v := range s.items {
		out[k] = v
	}
	return out
}

// Len returns the number of keys.
func (s *MapSink) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.items)
}

func (s *MapSink) NewWriter(context.Context, int, int) (Writer, error) {
	return mapWriter{s}, nil
}

type mapWriter struct {
	sink *MapSink
}

func (w mapWriter) Write(_ context.Context, items []any) error {
	w.sink.lock.Lock()
	defer w.sink.lock.Unlock()
	for _, item := range items {
		switch v := item.(type) {
		case datamodel.Entry:
			w.sink.items[v.Key] = v.Value
		case window.KeyedWindowResult:
			w.sink.items[v.Key] = v.Value
		default:
			return fmt.Errorf("map sink %q accepts entries, got %T", w.sink.name, item)
		}
	}
	return nil
}

func (w mapWriter) Flush(context.Context) error {
	return nil
}

func (w mapWriter) Close() error {
	return nil
}
