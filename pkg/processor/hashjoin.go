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

	"github.com/numaproj/dataflow/pkg/join"
	"github.com/numaproj/dataflow/pkg/snapshot"
)

// JoinResultFn builds the item emitted for a primary item and its matches, one per side. A missing match is
// join.Absent.
type JoinResultFn func(primary any, matches []any) any

// hashJoin joins the primary input, ordinal 0, with the side inputs, ordinals 1 to N. The sides are broadcast and
// drained before the primary input, so every table is complete when the first primary item arrives. Primary items are
// never dropped.
type hashJoin struct {
	base
	clauses   []join.Clause
	mapOutput JoinResultFn
	tables    []*join.Table
}

// NewHashJoin returns the supplier of a hash join with a clause per side.
func NewHashJoin(clauses []join.Clause, mapOutput JoinResultFn) Supplier {
	return func() Processor {
		h := &hashJoin{clauses: clauses, mapOutput: mapOutput}
		for _, c := range clauses {
			h.tables = append(h.tables, join.NewTable(c))
		}
		return h
	}
}

func (h *hashJoin) Process(_ context.Context, ordinal int, item Item, out Outbox) (err error) {
	defer Recover(h.pctx.Vertex, &err)
	if ordinal > 0 {
		h.tables[ordinal-1].Add(item.Payload)
		return nil
	}
	matches := make([]any, len(h.tables))
	for i, t := range h.tables {
		matches[i] = t.Lookup(item.Payload)
	}
	result := h.mapOutput(item.Payload, matches)
	if result == nil {
		return nil
	}
	return out.Offer(result, item.EventTime)
}

type joinTableState struct {
	Ordinal int
	Rows    map[any]any
}

// SaveState saves every table as an instance entry, each instance holds the whole of the broadcast sides.
func (h *hashJoin) SaveState(context.Context) ([]snapshot.Entry, error) {
	entries := make([]snapshot.Entry, 0, len(h.tables))
	for i, t := range h.tables {
		entries = append(entries, snapshot.InstanceEntry(joinTableState{Ordinal: i + 1, Rows: t.Rows()}))
	}
	return entries, nil
}

func (h *hashJoin) RestoreState(_ context.Context, entries []snapshot.Entry) error {
	for _, e := range entries {
		if s, ok := e.Value.(joinTableState); ok && s.Ordinal > 0 && s.Ordinal <= len(h.tables) {
			h.tables[s.Ordinal-1].Load(s.Rows)
		}
	}
	return nil
}
