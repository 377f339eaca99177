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
	"sort"
	"sync"
)

// ListSink collects the items in memory. Its writers are transactional: items become visible on Flush when used
// without snapshots, or on Commit.
type ListSink struct {
	name    string
	lock    sync.Mutex
	items   []any
	writers map[int]*listWriter
}

// NewListSink returns an empty list sink.
func NewListSink(name string) *ListSink {
	return &ListSink{name: name}
}

func (s *ListSink) Name() string {
	return s.name
}

// Items returns a copy of the visible items.
func (s *ListSink) Items() []any {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make([]any, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of visible items.
func (s *ListSink) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.items)
}

// Reset drops the visible items.
func (s *ListSink) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.items = nil
}

func (s *ListSink) publish(items []any) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.items = append(s.items, items...)
}

// NewWriter returns the writer of the instance. The transactions of an instance outlive its writers, so a writer
// created after a restart can commit what the previous one prepared.
func (s *ListSink) NewWriter(_ context.Context, index, _ int) (Writer, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.writers == nil {
		s.writers = make(map[int]*listWriter)
	}
	w, ok := s.writers[index]
	if !ok {
		w = &listWriter{sink: s, prepared: make(map[int64][]any)}
		s.writers[index] = w
	}
	return w, nil
}

type listWriter struct {
	sink     *ListSink
	lock     sync.Mutex
	pending  []any
	prepared map[int64][]any
}

func (w *listWriter) Write(_ context.Context, items []any) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.pending = append(w.pending, items...)
	return nil
}

func (w *listWriter) Flush(context.Context) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.sink.publish(w.pending)
	w.pending = nil
	return nil
}

func (w *listWriter) Prepare(_ context.Context, id int64) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.prepared[id] = append(w.prepared[id], w.pending...)
	w.pending = nil
	return nil
}

func (w *listWriter) Commit(_ context.Context, id int64) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	var ids []int64
	for txn := range w.prepared {
		if txn <= id {
			ids = append(ids, txn)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, txn := range ids {
		w.sink.publish(w.prepared[txn])
		delete(w.prepared, txn)
	}
	return nil
}

func (w *listWriter) Abort(context.Context) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.pending = nil
	w.prepared = make(map[int64][]any)
	return nil
}

// Close drops the items neither flushed nor prepared.
func (w *listWriter) Close() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.pending = nil
	return nil
}
