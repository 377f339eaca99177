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
	"reflect"
	"time"

	"github.com/numaproj/dataflow/pkg/aggregate"
	"github.com/numaproj/dataflow/pkg/join"
	"github.com/numaproj/dataflow/pkg/processor"
	"github.com/numaproj/dataflow/pkg/sideinput"
	"github.com/numaproj/dataflow/pkg/sinks"
	"github.com/numaproj/dataflow/pkg/watermark"
	"github.com/numaproj/dataflow/pkg/window"
)

// TypeOf returns the reflect.Type of T, for DeclareTypes.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// StreamStage is a stage emitting a stream of items.
type StreamStage struct {
	p *Pipeline
	s *Stage
}

// Stage returns the underlying stage.
func (s *StreamStage) Stage() *Stage {
	return s.s
}

// SetName names the stage, names are unique in a pipeline.
func (s *StreamStage) SetName(name string) *StreamStage {
	s.p.rename(s.s, name)
	return s
}

// SetLocalParallelism overrides the default parallelism of the stage.
func (s *StreamStage) SetLocalParallelism(n int) *StreamStage {
	if n <= 0 {
		s.p.fail(fmt.Errorf("stage %s: parallelism must be positive, got %d", s.s.Name, n))
		return s
	}
	s.s.Parallelism = n
	return s
}

// DeclareTypes declares the input and output item types of the stage, either may be nil.
func (s *StreamStage) DeclareTypes(in, out reflect.Type) *StreamStage {
	s.s.InType, s.s.OutType = in, out
	return s
}

func (s *StreamStage) sourceOnly(op string) bool {
	if s.s.Kind != KindSource {
		s.p.fail(fmt.Errorf("stage %s: %s applies to source stages only", s.s.Name, op))
		return false
	}
	return true
}

// WithTimestamps sets the event time of the source items to fn(item), the watermark trails the highest event time by
// allowedLag.
func (s *StreamStage) WithTimestamps(fn func(any) time.Time, allowedLag time.Duration) *StreamStage {
	if s.sourceOnly("WithTimestamps") {
		late := s.s.EventTime.Late
		s.s.EventTime = watermark.WithTimestamps(fn, allowedLag)
		s.s.EventTime.Late = late
	}
	return s
}

// WithNativeTimestamps uses the timestamps of the source records as event time.
func (s *StreamStage) WithNativeTimestamps(allowedLag time.Duration) *StreamStage {
	if s.sourceOnly("WithNativeTimestamps") {
		late := s.s.EventTime.Late
		s.s.EventTime = watermark.WithNativeTimestamps(allowedLag)
		s.s.EventTime.Late = late
	}
	return s
}

// WithLatePolicy sets what happens to the items of the source arriving behind the watermark.
func (s *StreamStage) WithLatePolicy(late watermark.LatePolicy) *StreamStage {
	if s.sourceOnly("WithLatePolicy") {
		s.s.EventTime.Late = late
	}
	return s
}

func (s *StreamStage) then(st *Stage, inputs ...*Stage) *StreamStage {
	return &StreamStage{p: s.p, s: s.p.add(st, append([]*Stage{s.s}, inputs...)...)}
}

// Map maps every item, a nil result drops it.
func (s *StreamStage) Map(fn processor.MapFn) *StreamStage {
	return s.then(&Stage{Kind: KindMap, Step: processor.Step{Kind: processor.StepMap, Map: fn}})
}

// Filter keeps the items fn returns true for.
func (s *StreamStage) Filter(fn processor.FilterFn) *StreamStage {
	return s.then(&Stage{Kind: KindFilter, Step: processor.Step{Kind: processor.StepFilter, Filter: fn}})
}

// FlatMap maps every item into zero or more items.
func (s *StreamStage) FlatMap(fn processor.FlatMapFn) *StreamStage {
	return s.then(&Stage{Kind: KindFlatMap, Step: processor.Step{Kind: processor.StepFlatMap, FlatMap: fn}})
}

// Merge emits the items of both stages, with no ordering between them.
func (s *StreamStage) Merge(other *StreamStage) *StreamStage {
	return s.then(&Stage{Kind: KindMerge}, other.s)
}

// GroupingKey groups the items by the named key. Two stages grouped by keys of the same name are partitioned
// together.
func (s *StreamStage) GroupingKey(name string, fn processor.KeyFn) *KeyedStage {
	if name == "" || fn == nil {
		s.p.fail(fmt.Errorf("stage %s: grouping key needs a name and a function", s.s.Name))
	}
	return &KeyedStage{p: s.p, upstream: s.s, key: Key{Name: name, Fn: fn}}
}

// Window applies the window to the stream, the aggregation that follows is not keyed.
func (s *StreamStage) Window(def window.Definition) *WindowStage {
	return newWindowStage(s.p, s.s, nil, def)
}

// Aggregate aggregates the whole input into one result emitted at its end.
func (s *StreamStage) Aggregate(op aggregate.Operation) *StreamStage {
	if err := op.Validate(); err != nil {
		s.p.fail(fmt.Errorf("stage %s: %w", s.s.Name, err))
	}
	return s.then(&Stage{Kind: KindAggregate, Op: op, KeyedResult: func(_, result any) any { return result }})
}

// HashJoin joins every item with its match in side, fn receives join.Absent when there is none.
func (s *StreamStage) HashJoin(side *StreamStage, clause join.Clause, fn func(primary, match any) any) *StreamStage {
	b := s.HashJoinBuilder()
	b.Add(side, clause)
	return b.build(func(primary any, matches []any) any { return fn(primary, matches[0]) })
}

// HashJoin2 joins every item with its matches in two sides.
func (s *StreamStage) HashJoin2(side1 *StreamStage, clause1 join.Clause, side2 *StreamStage, clause2 join.Clause, fn func(primary, match1, match2 any) any) *StreamStage {
	b := s.HashJoinBuilder()
	b.Add(side1, clause1)
	b.Add(side2, clause2)
	return b.build(func(primary any, matches []any) any { return fn(primary, matches[0], matches[1]) })
}

// HashJoinBuilder returns a builder joining the stream with any number of sides.
func (s *StreamStage) HashJoinBuilder() *HashJoinBuilder {
	b := &HashJoinBuilder{primary: s}
	b.primaryTag = b.tags.Issue()
	return b
}

// WriteTo drains the stream into the sink.
func (s *StreamStage) WriteTo(sink sinks.Sink) *SinkStage {
	if sink == nil {
		s.p.fail(fmt.Errorf("stage %s: sink is nil", s.s.Name))
	}
	st := s.then(&Stage{Kind: KindSink, Sink: sink})
	return &SinkStage{p: s.p, s: st.s}
}

// KeyedStage is a stream grouped by key.
type KeyedStage struct {
	p        *Pipeline
	upstream *Stage
	key      Key
}

func (k *KeyedStage) then(st *Stage) *StreamStage {
	st.Keys = []Key{k.key}
	return &StreamStage{p: k.p, s: k.p.add(st, k.upstream)}
}

// Aggregate aggregates the whole input by key, the results are emitted at its end as datamodel.Entry.
func (k *KeyedStage) Aggregate(op aggregate.Operation) *StreamStage {
	return k.AggregateMapped(op, nil)
}

// AggregateMapped is Aggregate emitting fn(key, result).
func (k *KeyedStage) AggregateMapped(op aggregate.Operation, fn processor.KeyedResultFn) *StreamStage {
	if err := op.Validate(); err != nil {
		k.p.fail(fmt.Errorf("aggregate on %s: %w", k.upstream.Name, err))
	}
	return k.then(&Stage{Kind: KindAggregate, Op: op, KeyedResult: fn})
}

// RollingAggregate emits the updated result of the key after every item, as datamodel.Entry.
func (k *KeyedStage) RollingAggregate(op aggregate.Operation) *StreamStage {
	return k.RollingAggregateMapped(op, nil)
}

// RollingAggregateMapped is RollingAggregate emitting fn(key, item, result).
func (k *KeyedStage) RollingAggregateMapped(op aggregate.Operation, fn processor.RollingResultFn) *StreamStage {
	if err := op.Validate(); err != nil {
		k.p.fail(fmt.Errorf("rolling aggregate on %s: %w", k.upstream.Name, err))
	}
	return k.then(&Stage{Kind: KindRollingAggregate, Op: op, RollingResult: fn})
}

// Distinct emits the first item of every key.
func (k *KeyedStage) Distinct() *StreamStage {
	return k.then(&Stage{Kind: KindDistinct})
}

// MapUsingStore maps every item with the value of its key in the store, join.Absent when missing.
func (k *KeyedStage) MapUsingStore(store sideinput.Store, fn processor.LookupFn) *StreamStage {
	if store == nil || fn == nil {
		k.p.fail(fmt.Errorf("map using store on %s needs a store and a function", k.upstream.Name))
	}
	return k.then(&Stage{Kind: KindMapUsingStore, Store: store, Lookup: fn})
}

// Window applies the window to the keyed stream.
func (k *KeyedStage) Window(def window.Definition) *WindowStage {
	key := k.key
	return newWindowStage(k.p, k.upstream, &key, def)
}

// AggregateBuilder returns a builder co-grouping the stage with other keyed stages, op aggregates the items of this
// stage.
func (k *KeyedStage) AggregateBuilder(op aggregate.Operation) *CoGroupBuilder {
	return newCoGroupBuilder(k, op, nil)
}

// WindowStage is a stream, keyed or not, to aggregate by window.
type WindowStage struct {
	p        *Pipeline
	upstream *Stage
	key      *Key
	def      window.Definition
}

func newWindowStage(p *Pipeline, upstream *Stage, key *Key, def window.Definition) *WindowStage {
	if err := def.Validate(); err != nil {
		p.fail(fmt.Errorf("window on %s: %w", upstream.Name, err))
	}
	return &WindowStage{p: p, upstream: upstream, key: key, def: def}
}

// Aggregate emits a window.KeyedWindowResult per window and key once the watermark passed the window end.
func (w *WindowStage) Aggregate(op aggregate.Operation) *StreamStage {
	return w.AggregateMapped(op, nil)
}

// AggregateMapped is Aggregate emitting fn(start, end, key, result).
func (w *WindowStage) AggregateMapped(op aggregate.Operation, fn processor.WindowResultFn) *StreamStage {
	if err := op.Validate(); err != nil {
		w.p.fail(fmt.Errorf("window aggregate on %s: %w", w.upstream.Name, err))
	}
	st := &Stage{Kind: KindWindowAggregate, Op: op, Window: w.def, WindowResult: fn}
	if w.key != nil {
		st.Keys = []Key{*w.key}
	}
	return &StreamStage{p: w.p, s: w.p.add(st, w.upstream)}
}

// AggregateBuilder returns a builder co-grouping the windowed stage with other keyed stages in the same windows.
func (w *WindowStage) AggregateBuilder(op aggregate.Operation) *CoGroupBuilder {
	if w.key == nil {
		w.p.fail(fmt.Errorf("window co-group on %s needs a grouping key", w.upstream.Name))
		return newCoGroupBuilder(&KeyedStage{p: w.p, upstream: w.upstream}, op, &w.def)
	}
	return newCoGroupBuilder(&KeyedStage{p: w.p, upstream: w.upstream, key: *w.key}, op, &w.def)
}

// SinkStage is a sink of the pipeline.
type SinkStage struct {
	p *Pipeline
	s *Stage
}

// Stage returns the underlying stage.
func (s *SinkStage) Stage() *Stage {
	return s.s
}

// SetName names the sink stage.
func (s *SinkStage) SetName(name string) *SinkStage {
	s.p.rename(s.s, name)
	return s
}

// SetLocalParallelism overrides the default parallelism of the sink.
func (s *SinkStage) SetLocalParallelism(n int) *SinkStage {
	if n <= 0 {
		s.p.fail(fmt.Errorf("stage %s: parallelism must be positive, got %d", s.s.Name, n))
		return s
	}
	s.s.Parallelism = n
	return s
}
