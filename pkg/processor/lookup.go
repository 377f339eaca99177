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

package processor

import (
	"context"
	"errors"

	"github.com/numaproj/dataflow/pkg/join"
	"github.com/numaproj/dataflow/pkg/sideinput"
)

// LookupFn builds the item emitted for an item and the value found in the store, join.Absent when missing. A nil
// result drops the item.
type LookupFn func(item, value any) (any, error)

// storeLookup enriches every item with the value of its key in a side input store. A whole read batch is looked up
// with one GetAll.
type storeLookup struct {
	base
	store sideinput.Store
	keyFn KeyFn
	fn    LookupFn
}

var _ BatchProcessor = (*storeLookup)(nil)

// NewStoreLookup returns the supplier of a store lookup.
func NewStoreLookup(store sideinput.Store, keyFn KeyFn, fn LookupFn) Supplier {
	return func() Processor {
		return &storeLookup{store: store, keyFn: keyFn, fn: fn}
	}
}

func (s *storeLookup) Process(ctx context.Context, ordinal int, item Item, out Outbox) error {
	return s.ProcessBatch(ctx, ordinal, []Item{item}, out)
}

func (s *storeLookup) ProcessBatch(ctx context.Context, _ int, items []Item, out Outbox) (err error) {
	defer Recover(s.pctx.Vertex, &err)
	keys := make([]any, len(items))
	for i, item := range items {
		keys[i] = s.keyFn(item.Payload)
	}
	values, err := s.store.GetAll(ctx, keys)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return s.userError(err)
	}
	for i, item := range items {
		v, ok := values[keys[i]]
		result, err := s.fn(item.Payload, join.OrAbsent(v, ok))
		if err != nil {
			return s.userError(err)
		}
		if result == nil {
			continue
		}
		if err := out.Offer(result, item.EventTime); err != nil {
			return err
		}
	}
	return nil
}
