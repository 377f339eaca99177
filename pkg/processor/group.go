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
	"time"

	"github.com/numaproj/dataflow/pkg/aggregate"
	"github.com/numaproj/dataflow/pkg/datamodel"
	"github.com/numaproj/dataflow/pkg/snapshot"
)

// KeyedResultFn builds the item emitted for the result of a key.
type KeyedResultFn func(key, result any) any

// EntryResult emits datamodel.Entry{key, result}.
func EntryResult(key, result any) any {
	return datamodel.NewEntry(key, result)
}

// groupAggregate aggregates the whole input by key and emits the results once all the inputs ended. With nil keyFns
// it aggregates everything into one result, which is emitted even for an empty input.
type groupAggregate struct {
	base
	keyFns    []KeyFn
	op        aggregate.Operation
	mapOutput KeyedResultFn
	accs      map[any]any
	maxTs     time.Time
}

// NewGroupAggregate returns the supplier of a batch aggregation. keyFns holds the key extractor of each input ordinal,
// co-grouping passes one per input.
func NewGroupAggregate(keyFns []KeyFn, op aggregate.Operation, mapOutput KeyedResultFn) Supplier {
	if mapOutput == nil {
		mapOutput = EntryResult
	}
	return func() Processor {
		return &groupAggregate{keyFns: keyFns, op: op, mapOutput: mapOutput, accs: make(map[any]any)}
	}
}

func (g *groupAggregate) keyed() bool {
	return len(g.keyFns) > 0
}

func (g *groupAggregate) Process(_ context.Context, ordinal int, item Item, _ Outbox) (err error) {
	defer Recover(g.pctx.Vertex, &err)
	var key any
	if g.keyed() {
		key = g.keyFns[ordinal](item.Payload)
	}
	acc, ok := g.accs[key]
	if !ok {
		acc = g.op.Create()
	}
	g.accs[key] = g.op.AccumulateFn(ordinal)(acc, item.Payload)
	if item.EventTime.After(g.maxTs) {
		g.maxTs = item.EventTime
	}
	return nil
}

func (g *groupAggregate) Complete(_ context.Context, out Outbox) (err error) {
	defer Recover(g.pctx.Vertex, &err)
	if !g.keyed() {
		acc, ok := g.accs[nil]
		if !ok {
			acc = g.op.Create()
		}
		return out.Offer(g.op.Export(acc), g.maxTs)
	}
	for key, acc := range g.accs {
		if err := out.Offer(g.mapOutput(key, g.op.Export(acc)), g.maxTs); err != nil {
			return err
		}
	}
	return nil
}

func (g *groupAggregate) SaveState(context.Context) ([]snapshot.Entry, error) {
	entries := make([]snapshot.Entry, 0, len(g.accs))
	for key, acc := range g.accs {
		entries = append(entries, snapshot.KeyedEntry(key, g.op.Copy(acc)))
	}
	return entries, nil
}

func (g *groupAggregate) RestoreState(_ context.Context, entries []snapshot.Entry) error {
	for _, e := range entries {
		if acc, ok := g.accs[e.Key]; ok {
			g.accs[e.Key] = g.op.Combine(acc, e.Value)
		} else {
			g.accs[e.Key] = g.op.Copy(e.Value)
		}
	}
	return nil
}
