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

package sources

import (
	"context"
	"fmt"
	"sort"

	"github.com/numaproj/dataflow/pkg/datamodel"
)

// listSource is a bounded source over a fixed list. Instance i reads the items at the indexes congruent to i.
type listSource struct {
	name  string
	items []any
}

// NewListSource returns a bounded source reading the items.
func NewListSource(name string, items []any) Source {
	return &listSource{name: name, items: items}
}

// NewMapEntriesSource returns a bounded source reading the entries of the map as datamodel.Entry, ordered by the
// string form of the keys.
func NewMapEntriesSource[K comparable, V any](name string, m map[K]V) Source {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
	})
	items := make([]any, 0, len(keys))
	for _, k := range keys {
		items = append(items, datamodel.NewEntry(k, m[k]))
	}
	return &listSource{name: name, items: items}
}

func (s *listSource) Name() string {
	return s.name
}

func (s *listSource) Bounded() bool {
	return true
}

func (s *listSource) NewReader(_ context.Context, index, total int) (Reader, error) {
	if total <= 0 || index < 0 || index >= total {
		return nil, fmt.Errorf("invalid instance %d of %d", index, total)
	}
	return &listReader{items: s.items, next: index, step: total}, nil
}

type listReader struct {
	items []any
	next  int
	step  int
}

func (r *listReader) Read(_ context.Context, max int) ([]Record, bool, error) {
	var records []Record
	for ; r.next < len(r.items) && len(records) < max; r.next += r.step {
		records = append(records, Record{Value: r.items[r.next]})
	}
	return records, r.next >= len(r.items), nil
}

func (r *listReader) Position() Offsets {
	return Offsets{0: int64(r.next)}
}

func (r *listReader) Seek(offsets Offsets) error {
	if next, ok := offsets[0]; ok {
		r.next = int(next)
	}
	return nil
}

func (r *listReader) Close() error {
	return nil
}
