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

	"github.com/numaproj/dataflow/pkg/aggregate"
	"github.com/numaproj/dataflow/pkg/snapshot"
)

// RollingResultFn builds the item emitted after an item updated the accumulator of its key.
type RollingResultFn func(key, item, result any) any

// rollingAggregate keeps an accumulator per key and emits the updated result after every item.
type rollingAggregate struct {
	base
	keyFn     KeyFn
	op        aggregate.Operation
	mapOutput RollingResultFn
	accs      map[any]any
}

// NewRollingAggregate returns the supplier of a rolling aggregation, the default output is datamodel.Entry{key, result}.
func NewRollingAggregate(keyFn KeyFn, op aggregate.Operation, mapOutput RollingResultFn) Supplier {
	if mapOutput == nil {
		mapOutput = func(key, _, result any) any {
			return EntryResult(key, result)
		}
	}
	return func() Processor {
		return &rollingAggregate{keyFn: keyFn, op: op, mapOutput: mapOutput, accs: make(map[any]any)}
	}
}

func (r *rollingAggregate) Process(_ context.Context, _ int, item Item, out Outbox) (err error) {
	defer Recover(r.pctx.Vertex, &err)
	key := r.keyFn(item.Payload)
	acc, ok := r.accs[key]
	if !ok {
		acc = r.op.Create()
	}
	acc = r.op.AccumulateFn(0)(acc, item.Payload)
	r.accs[key] = acc
	return out.Offer(r.mapOutput(key, item.Payload, r.op.Export(acc)), item.EventTime)
}

func (r *rollingAggregate) SaveState(context.Context) ([]snapshot.Entry, error) {
	entries := make([]snapshot.Entry, 0, len(r.accs))
	for key, acc := range r.accs {
		entries = append(entries, snapshot.KeyedEntry(key, r.op.Copy(acc)))
	}
	return entries, nil
}

func (r *rollingAggregate) RestoreState(_ context.Context, entries []snapshot.Entry) error {
	for _, e := range entries {
		r.accs[e.Key] = r.op.Copy(e.Value)
	}
	return nil
}

// distinct emits the first item of every key.
type distinct struct {
	base
	keyFn KeyFn
	seen  map[any]struct{}
}

// NewDistinct returns the supplier of a distinct processor. A nil keyFn uses the item itself as the key.
func NewDistinct(keyFn KeyFn) Supplier {
	if keyFn == nil {
		keyFn = func(item any) any { return item }
	}
	return func() Processor {
		return &distinct{keyFn: keyFn, seen: make(map[any]struct{})}
	}
}

func (d *distinct) Process(_ context.Context, _ int, item Item, out Outbox) (err error) {
	defer Recover(d.pctx.Vertex, &err)
	key := d.keyFn(item.Payload)
	if _, ok := d.seen[key]; ok {
		return nil
	}
	d.seen[key] = struct{}{}
	return out.Offer(item.Payload, item.EventTime)
}

func (d *distinct) SaveState(context.Context) ([]snapshot.Entry, error) {
	entries := make([]snapshot.Entry, 0, len(d.seen))
	for key := range d.seen {
		entries = append(entries, snapshot.KeyedEntry(key, true))
	}
	return entries, nil
}

func (d *distinct) RestoreState(_ context.Context, entries []snapshot.Entry) error {
	for _, e := range entries {
		d.seen[e.Key] = struct{}{}
	}
	return nil
}
