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

package pipeline

import (
	"fmt"

	"github.com/numaproj/dataflow/pkg/aggregate"
	"github.com/numaproj/dataflow/pkg/datamodel"
	"github.com/numaproj/dataflow/pkg/join"
	"github.com/numaproj/dataflow/pkg/window"
)

// HashJoinBuilder joins a primary stream with any number of side streams. Each side is held in memory by every
// instance of the join.
type HashJoinBuilder struct {
	primary    *StreamStage
	sides      []*Stage
	clauses    []join.Clause
	tags       datamodel.TagRegistry
	primaryTag datamodel.Tag
}

// PrimaryTag returns the tag of the primary item.
func (b *HashJoinBuilder) PrimaryTag() datamodel.Tag {
	return b.primaryTag
}

// Add joins the side with the clause and returns the tag of its matches.
func (b *HashJoinBuilder) Add(side *StreamStage, clause join.Clause) datamodel.Tag {
	if err := clause.Validate(); err != nil {
		b.primary.p.fail(fmt.Errorf("hash join on %s: %w", b.primary.s.Name, err))
	}
	b.sides = append(b.sides, side.s)
	b.clauses = append(b.clauses, clause)
	return b.tags.Issue()
}

// Build returns the stage emitting fn(primary, matches), matches holds the match of every side by tag, join.Absent
// when there is none. A nil result drops the item.
func (b *HashJoinBuilder) Build(fn func(primary any, matches datamodel.ItemsByTag) any) *StreamStage {
	return b.build(func(primary any, matches []any) any {
		var ibt datamodel.ItemsByTag
		for i, m := range matches {
			ibt.Put(datamodel.Tag(i+1), m)
		}
		return fn(primary, ibt)
	})
}

func (b *HashJoinBuilder) build(fn func(primary any, matches []any) any) *StreamStage {
	if len(b.sides) == 0 {
		b.primary.p.fail(fmt.Errorf("hash join on %s has no side", b.primary.s.Name))
	}
	return b.primary.then(&Stage{Kind: KindHashJoin, Clauses: b.clauses, JoinResult: fn}, b.sides...)
}

// CoGroupBuilder aggregates several keyed stages together, each with its own operation. The result of a key holds the
// result of every input by tag.
type CoGroupBuilder struct {
	p      *Pipeline
	inputs []*Stage
	keys   []Key
	ops    []aggregate.Operation
	window *window.Definition
	tags   datamodel.TagRegistry
	tag0   datamodel.Tag
}

func newCoGroupBuilder(first *KeyedStage, op aggregate.Operation, def *window.Definition) *CoGroupBuilder {
	b := &CoGroupBuilder{p: first.p, window: def}
	b.tag0 = b.add(first, op)
	return b
}

// Tag0 returns the tag of the stage the builder was created from.
func (b *CoGroupBuilder) Tag0() datamodel.Tag {
	return b.tag0
}

// Add co-groups the keyed stage, aggregated by op, and returns the tag of its result.
func (b *CoGroupBuilder) Add(stage *KeyedStage, op aggregate.Operation) datamodel.Tag {
	return b.add(stage, op)
}

func (b *CoGroupBuilder) add(stage *KeyedStage, op aggregate.Operation) datamodel.Tag {
	if err := op.Validate(); err != nil {
		b.p.fail(fmt.Errorf("co-group on %s: %w", stage.upstream.Name, err))
	}
	b.inputs = append(b.inputs, stage.upstream)
	b.keys = append(b.keys, stage.key)
	b.ops = append(b.ops, op)
	return b.tags.Issue()
}

// Build returns the co-group stage. The batch variant emits fn(key, results) at the end of the input, the windowed
// one emits a window.KeyedWindowResult holding fn(key, results) per window. A nil fn emits the results as they are.
func (b *CoGroupBuilder) Build(fn func(key any, results datamodel.ItemsByTag) any) *StreamStage {
	if fn == nil {
		fn = func(_ any, results datamodel.ItemsByTag) any { return results }
	}
	byTag := func(key, result any) any {
		var ibt datamodel.ItemsByTag
		for i, r := range result.([]any) {
			ibt.Put(datamodel.Tag(i), r)
		}
		return fn(key, ibt)
	}
	st := &Stage{Op: aggregate.CoAggregate(b.ops...), Keys: b.keys}
	if b.window != nil {
		st.Kind = KindWindowAggregate
		st.Window = *b.window
		st.WindowResult = func(start, end int64, key, result any) any {
			return window.NewKeyedWindowResult(start, end, key, byTag(key, result))
		}
	} else {
		st.Kind = KindAggregate
		st.KeyedResult = byTag
	}
	return &StreamStage{p: b.p, s: b.p.add(st, b.inputs...)}
}
