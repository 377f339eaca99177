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
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/dataflow/pkg/aggregate"
	dfv1 "github.com/numaproj/dataflow/pkg/apis/dataflow/v1alpha1"
	"github.com/numaproj/dataflow/pkg/datamodel"
	"github.com/numaproj/dataflow/pkg/join"
	"github.com/numaproj/dataflow/pkg/shared/logging"
	"github.com/numaproj/dataflow/pkg/sideinput"
	"github.com/numaproj/dataflow/pkg/sinks"
	"github.com/numaproj/dataflow/pkg/snapshot"
	"github.com/numaproj/dataflow/pkg/watermark"
	"github.com/numaproj/dataflow/pkg/window"
)

type collector struct {
	items []any
	times []time.Time
}

func (c *collector) Offer(item any, ts time.Time) error {
	c.items = append(c.items, item)
	c.times = append(c.times, ts)
	return nil
}

func testContext(guarantee dfv1.ProcessingGuarantee) Context {
	return Context{Job: "test", Vertex: "vertex", Parallelism: 1, Guarantee: string(guarantee), Logger: logging.NewLogger()}
}

func newProcessor(t *testing.T, s Supplier) Processor {
	t.Helper()
	p := s()
	require.NoError(t, p.Init(context.Background(), testContext(dfv1.ProcessingGuaranteeNone)))
	return p
}

func at(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func TestTransform(t *testing.T) {
	ctx := context.Background()
	p := newProcessor(t, NewTransform(
		Step{Kind: StepFlatMap, FlatMap: func(v any) ([]any, error) {
			n := v.(int)
			return []any{n, n * 10, nil}, nil
		}},
		Step{Kind: StepFilter, Filter: func(v any) (bool, error) { return v.(int) != 20, nil }},
		Step{Kind: StepMap, Map: func(v any) (any, error) {
			if v.(int) == 3 {
				return nil, nil
			}
			return v.(int) + 1, nil
		}},
	))
	out := &collector{}
	for _, n := range []int{1, 2, 3} {
		require.NoError(t, p.Process(ctx, 0, Item{Payload: n, EventTime: at(int64(n))}, out))
	}
	assert.Equal(t, []any{2, 11, 3, 31}, out.items)
	assert.Equal(t, []time.Time{at(1), at(1), at(2), at(3)}, out.times)
}

func TestTransform_Passthrough(t *testing.T) {
	p := newProcessor(t, NewTransform())
	out := &collector{}
	require.NoError(t, p.Process(context.Background(), 1, Item{Payload: "x"}, out))
	assert.Equal(t, []any{"x"}, out.items)
}

func TestTransform_UserErrors(t *testing.T) {
	ctx := context.Background()
	p := newProcessor(t, NewTransform(Step{Kind: StepMap, Map: func(v any) (any, error) {
		if v == "panic" {
			panic("bad item")
		}
		return nil, errors.New("rejected")
	}}))
	var ufe *UserFunctionError
	err := p.Process(ctx, 0, Item{Payload: "x"}, &collector{})
	require.ErrorAs(t, err, &ufe)
	assert.Equal(t, "vertex", ufe.Vertex)
	assert.EqualError(t, ufe.Cause, "rejected")

	err = p.Process(ctx, 0, Item{Payload: "panic"}, &collector{})
	require.ErrorAs(t, err, &ufe)
	assert.Contains(t, err.Error(), "bad item")
}

func wordKey(v any) any {
	return v.(string)
}

func sortedEntries(items []any) []datamodel.Entry {
	out := make([]datamodel.Entry, 0, len(items))
	for _, it := range items {
		out = append(out, it.(datamodel.Entry))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.(string) < out[j].Key.(string) })
	return out
}

func TestGroupAggregate_Keyed(t *testing.T) {
	ctx := context.Background()
	p := newProcessor(t, NewGroupAggregate([]KeyFn{wordKey}, aggregate.Counting(), nil))
	out := &collector{}
	for _, w := range []string{"a", "b", "a"} {
		require.NoError(t, p.Process(ctx, 0, Item{Payload: w}, out))
	}
	assert.Empty(t, out.items, "batch aggregation emits at the end of the input")

	state, err := p.SaveState(ctx)
	require.NoError(t, err)
	restored := newProcessor(t, NewGroupAggregate([]KeyFn{wordKey}, aggregate.Counting(), nil))
	require.NoError(t, restored.RestoreState(ctx, state))
	require.NoError(t, restored.Process(ctx, 0, Item{Payload: "b"}, out))

	require.NoError(t, restored.Complete(ctx, out))
	assert.Equal(t, []datamodel.Entry{datamodel.NewEntry("a", int64(2)), datamodel.NewEntry("b", int64(2))}, sortedEntries(out.items))
}

func TestGroupAggregate_NonKeyedEmptyInput(t *testing.T) {
	p := newProcessor(t, NewGroupAggregate(nil, aggregate.Counting(), nil))
	out := &collector{}
	require.NoError(t, p.Complete(context.Background(), out))
	assert.Equal(t, []any{int64(0)}, out.items)
}

func TestGroupAggregate_CoGroup(t *testing.T) {
	ctx := context.Background()
	op := aggregate.CoAggregate(aggregate.Counting(), aggregate.ToList())
	p := newProcessor(t, NewGroupAggregate([]KeyFn{
		func(v any) any { return v.(datamodel.Entry).Key },
		func(v any) any { return v.(datamodel.Tuple2).F0 },
	}, op, nil))
	out := &collector{}
	require.NoError(t, p.Process(ctx, 0, Item{Payload: datamodel.NewEntry("u1", "click")}, out))
	require.NoError(t, p.Process(ctx, 0, Item{Payload: datamodel.NewEntry("u1", "click")}, out))
	require.NoError(t, p.Process(ctx, 1, Item{Payload: datamodel.NewTuple2("u1", "buy")}, out))
	require.NoError(t, p.Process(ctx, 1, Item{Payload: datamodel.NewTuple2("u2", "buy")}, out))
	require.NoError(t, p.Complete(ctx, out))

	got := sortedEntries(out.items)
	require.Len(t, got, 2)
	assert.Equal(t, []any{int64(2), []any{datamodel.NewTuple2("u1", "buy")}}, got[0].Value)
	assert.Equal(t, []any{int64(0), []any{datamodel.NewTuple2("u2", "buy")}}, got[1].Value)
}

func TestRollingAggregate(t *testing.T) {
	ctx := context.Background()
	op := aggregate.MaxBy(func(a, b any) int { return a.(int) - b.(int) })
	keyFn := func(v any) any {
		if v.(int)%2 == 0 {
			return "even"
		}
		return "odd"
	}
	p := newProcessor(t, NewRollingAggregate(keyFn, op, nil))
	out := &collector{}
	for _, n := range []int{2, 1, 8, 4, 3} {
		require.NoError(t, p.Process(ctx, 0, Item{Payload: n, EventTime: at(int64(n))}, out))
	}
	assert.Equal(t, []any{
		datamodel.NewEntry("even", 2),
		datamodel.NewEntry("odd", 1),
		datamodel.NewEntry("even", 8),
		datamodel.NewEntry("even", 8),
		datamodel.NewEntry("odd", 3),
	}, out.items)

	state, err := p.SaveState(ctx)
	require.NoError(t, err)
	restored := newProcessor(t, NewRollingAggregate(keyFn, op, nil))
	require.NoError(t, restored.RestoreState(ctx, state))
	out = &collector{}
	require.NoError(t, restored.Process(ctx, 0, Item{Payload: 6}, out))
	assert.Equal(t, []any{datamodel.NewEntry("even", 8)}, out.items)
}

func TestDistinct(t *testing.T) {
	ctx := context.Background()
	p := newProcessor(t, NewDistinct(nil))
	out := &collector{}
	for _, v := range []any{"a", "b", "a", "c", "b"} {
		require.NoError(t, p.Process(ctx, 0, Item{Payload: v}, out))
	}
	assert.Equal(t, []any{"a", "b", "c"}, out.items)

	state, err := p.SaveState(ctx)
	require.NoError(t, err)
	restored := newProcessor(t, NewDistinct(nil))
	require.NoError(t, restored.RestoreState(ctx, state))
	out = &collector{}
	require.NoError(t, restored.Process(ctx, 0, Item{Payload: "a"}, out))
	require.NoError(t, restored.Process(ctx, 0, Item{Payload: "d"}, out))
	assert.Equal(t, []any{"d"}, out.items)
}

// windowHarness drives the two window stages the way the runtime does.
type windowHarness struct {
	t      *testing.T
	stage1 Processor
	stage2 Processor
	out    *collector
}

func newWindowHarness(t *testing.T, op aggregate.Operation, def window.Definition, late watermark.LatePolicy) *windowHarness {
	return &windowHarness{
		t:      t,
		stage1: newProcessor(t, NewFrameAccumulator([]KeyFn{wordKey}, op, def, late)),
		stage2: newProcessor(t, NewSlidingCombiner(op, def, nil)),
		out:    &collector{},
	}
}

func (h *windowHarness) event(key string, ts int64) {
	require.NoError(h.t, h.stage1.Process(context.Background(), 0, Item{Payload: key, EventTime: at(ts)}, h.out))
}

func (h *windowHarness) watermark(ms int64) {
	ctx := context.Background()
	partials := &collector{}
	wm := watermark.FromMillis(ms)
	require.NoError(h.t, h.stage1.ProcessWatermark(ctx, wm, partials))
	for i, p := range partials.items {
		require.NoError(h.t, h.stage2.Process(ctx, 0, Item{Payload: p, EventTime: partials.times[i]}, h.out))
	}
	require.NoError(h.t, h.stage2.ProcessWatermark(ctx, wm, h.out))
}

type windowRow struct {
	End   int64
	Key   any
	Value any
}

func (h *windowHarness) results() []windowRow {
	rows := make([]windowRow, 0, len(h.out.items))
	for _, it := range h.out.items {
		r := it.(window.KeyedWindowResult)
		rows = append(rows, windowRow{End: r.End.UnixMilli(), Key: r.Key, Value: r.Value})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].End != rows[j].End {
			return rows[i].End < rows[j].End
		}
		return rows[i].Key.(string) < rows[j].Key.(string)
	})
	return rows
}

func TestWindow_Tumbling(t *testing.T) {
	h := newWindowHarness(t, aggregate.Counting(), window.Tumbling(10*time.Millisecond), watermark.LateDrop())
	h.event("a", 1)
	h.event("a", 5)
	h.event("b", 3)
	h.event("a", 12)
	h.watermark(10)
	assert.Equal(t, []windowRow{{10, "a", int64(2)}, {10, "b", int64(1)}}, h.results())
	r := h.out.items[0].(window.KeyedWindowResult)
	assert.Equal(t, int64(0), r.Start.UnixMilli())

	h.event("b", 9)
	h.watermark(20)
	assert.Equal(t, []windowRow{{10, "a", int64(2)}, {10, "b", int64(1)}, {20, "a", int64(1)}}, h.results(),
		"the late event is dropped")
}

func TestWindow_LateSideOutput(t *testing.T) {
	var late []any
	h := newWindowHarness(t, aggregate.Counting(), window.Tumbling(10*time.Millisecond), watermark.LateSideOutput(func(item any, _ time.Time) {
		late = append(late, item)
	}))
	h.watermark(10)
	h.event("a", 9)
	h.event("a", 10)
	h.watermark(20)
	assert.Equal(t, []any{"a"}, late)
	assert.Equal(t, []windowRow{{20, "a", int64(1)}}, h.results())
}

func expectedSliding() []windowRow {
	return []windowRow{
		{10, "k", int64(1)}, {20, "k", int64(2)}, {30, "k", int64(2)}, {40, "k", int64(1)},
		{50, "k", int64(1)}, {60, "k", int64(1)}, {70, "k", int64(1)},
	}
}

func TestWindow_SlidingIncremental(t *testing.T) {
	h := newWindowHarness(t, aggregate.Counting(), window.Sliding(30*time.Millisecond, 10*time.Millisecond), watermark.LateDrop())
	h.event("k", 5)
	h.event("k", 15)
	h.event("k", 45)
	h.watermark(math.MaxInt64 / 2)
	assert.Equal(t, expectedSliding(), h.results())
}

func TestWindow_SlidingRecomputed(t *testing.T) {
	h := newWindowHarness(t, aggregate.Counting().WithoutDeduct(), window.Sliding(30*time.Millisecond, 10*time.Millisecond), watermark.LateDrop())
	h.event("k", 5)
	h.event("k", 15)
	h.event("k", 45)
	h.watermark(math.MaxInt64 / 2)
	assert.Equal(t, expectedSliding(), h.results())
}

func TestWindow_SlidingRestore(t *testing.T) {
	for _, op := range []aggregate.Operation{aggregate.Counting(), aggregate.Counting().WithoutDeduct()} {
		ctx := context.Background()
		def := window.Sliding(30*time.Millisecond, 10*time.Millisecond)
		h := newWindowHarness(t, op, def, watermark.LateDrop())
		h.event("k", 5)
		h.event("k", 15)
		h.event("k", 45)
		h.watermark(30)

		s1, err := h.stage1.SaveState(ctx)
		require.NoError(t, err)
		s2, err := h.stage2.SaveState(ctx)
		require.NoError(t, err)
		restored := newWindowHarness(t, op, def, watermark.LateDrop())
		require.NoError(t, restored.stage1.RestoreState(ctx, s1))
		require.NoError(t, restored.stage2.RestoreState(ctx, s2))
		restored.out = h.out
		restored.watermark(math.MaxInt64 / 2)
		assert.Equal(t, expectedSliding(), restored.results(), op.Name)
	}
}

// multiWindowHarness feeds one combiner from several accumulators, the combiner sees the lowest of their
// watermarks as the runtime coalesces them.
type multiWindowHarness struct {
	t         *testing.T
	producers []Processor
	combiner  Processor
	coalescer *watermark.Coalescer
	out       *collector
}

func newMultiWindowHarness(t *testing.T, producers int, op aggregate.Operation, def window.Definition) *multiWindowHarness {
	h := &multiWindowHarness{
		t:         t,
		combiner:  newProcessor(t, NewSlidingCombiner(op, def, nil)),
		coalescer: watermark.NewCoalescer(producers),
		out:       &collector{},
	}
	for i := 0; i < producers; i++ {
		h.producers = append(h.producers, newProcessor(t, NewFrameAccumulator([]KeyFn{wordKey}, op, def, watermark.LateDrop())))
	}
	return h
}

func (h *multiWindowHarness) event(producer int, key string, ts int64) {
	require.NoError(h.t, h.producers[producer].Process(context.Background(), 0, Item{Payload: key, EventTime: at(ts)}, &collector{}))
}

func (h *multiWindowHarness) watermark(producer int, ms int64) {
	ctx := context.Background()
	partials := &collector{}
	wm := watermark.FromMillis(ms)
	require.NoError(h.t, h.producers[producer].ProcessWatermark(ctx, wm, partials))
	for i, p := range partials.items {
		require.NoError(h.t, h.combiner.Process(ctx, producer, Item{Payload: p, EventTime: partials.times[i]}, h.out))
	}
	if coalesced, ok := h.coalescer.Observe(producer, wm); ok {
		require.NoError(h.t, h.combiner.ProcessWatermark(ctx, coalesced, h.out))
	}
}

func (h *multiWindowHarness) results() []windowRow {
	return (&windowHarness{out: h.out}).results()
}

func TestWindow_SlowerProducer(t *testing.T) {
	for _, op := range []aggregate.Operation{aggregate.Counting(), aggregate.Counting().WithoutDeduct()} {
		t.Run(op.Name, func(t *testing.T) {
			h := newMultiWindowHarness(t, 2, op, window.Tumbling(20*time.Millisecond))
			h.event(0, "k", 90)
			h.watermark(0, 100)
			h.event(1, "k", 55)
			h.watermark(1, 50)
			assert.Empty(t, h.results())
			h.watermark(1, 100)
			assert.Equal(t, []windowRow{{60, "k", int64(1)}, {100, "k", int64(1)}}, h.results())
		})
	}
}

// bruteForceWindows counts the events of every window from scratch.
func bruteForceWindows(def window.Definition, events map[string][]int64) []windowRow {
	policy := def.Policy()
	counts := make(map[int64]map[string]int64)
	for key, tss := range events {
		for _, ts := range tss {
			first := policy.HigherFrameTs(ts)
			for end := first; end < first+policy.WindowSize(); end += policy.FrameSize() {
				if counts[end] == nil {
					counts[end] = make(map[string]int64)
				}
				counts[end][key]++
			}
		}
	}
	var rows []windowRow
	for end, byKey := range counts {
		for key, n := range byKey {
			rows = append(rows, windowRow{End: end, Key: key, Value: n})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].End != rows[j].End {
			return rows[i].End < rows[j].End
		}
		return rows[i].Key.(string) < rows[j].Key.(string)
	})
	return rows
}

func TestWindow_IncrementalMatchesRecount(t *testing.T) {
	defs := []window.Definition{
		window.Sliding(50*time.Millisecond, 10*time.Millisecond),
		window.Sliding(30*time.Millisecond, 15*time.Millisecond),
		window.Tumbling(20 * time.Millisecond),
	}
	for seed := int64(1); seed <= 20; seed++ {
		r := rand.New(rand.NewSource(seed))
		def := defs[r.Intn(len(defs))]
		producers := 1 + r.Intn(3)
		// every producer reads its own events in event time order
		perProducer := make([][]struct {
			key string
			ts  int64
		}, producers)
		events := make(map[string][]int64)
		for i := 0; i < 200; i++ {
			key := fmt.Sprintf("k%d", r.Intn(4))
			ts := r.Int63n(1000)
			pi := r.Intn(producers)
			perProducer[pi] = append(perProducer[pi], struct {
				key string
				ts  int64
			}{key, ts})
			events[key] = append(events[key], ts)
		}
		for _, evs := range perProducer {
			sort.Slice(evs, func(i, j int) bool { return evs[i].ts < evs[j].ts })
		}
		expected := bruteForceWindows(def, events)

		for _, op := range []aggregate.Operation{aggregate.Counting(), aggregate.Counting().WithoutDeduct()} {
			name := fmt.Sprintf("seed=%d producers=%d %s %s", seed, producers, def, op.Name)
			h := newMultiWindowHarness(t, producers, op, def)
			// the same interleaving for both operations
			ir := rand.New(rand.NewSource(seed * 7919))
			next := make([]int, producers)
			for {
				var live []int
				for pi := range perProducer {
					if next[pi] < len(perProducer[pi]) {
						live = append(live, pi)
					}
				}
				if len(live) == 0 {
					break
				}
				pi := live[ir.Intn(len(live))]
				ev := perProducer[pi][next[pi]]
				next[pi]++
				h.event(pi, ev.key, ev.ts)
				if ir.Intn(3) == 0 {
					h.watermark(pi, ev.ts)
				}
			}
			for pi := 0; pi < producers; pi++ {
				h.watermark(pi, math.MaxInt64/2)
			}
			assert.Equal(t, expected, h.results(), name)
		}
	}
}

func TestHashJoin(t *testing.T) {
	ctx := context.Background()
	clause := join.OnKeys(
		func(v any) any { return v.(datamodel.Entry).Key },
		func(v any) any { return v.(datamodel.Entry).Key },
	).Projecting(func(v any) any { return v.(datamodel.Entry).Value })
	mapOutput := func(primary any, matches []any) any {
		return datamodel.NewTuple2(primary.(datamodel.Entry).Value, matches[0])
	}
	p := newProcessor(t, NewHashJoin([]join.Clause{clause}, mapOutput))
	out := &collector{}
	require.NoError(t, p.Process(ctx, 1, Item{Payload: datamodel.NewEntry("AAPL", "Apple")}, out))
	assert.Empty(t, out.items)

	state, err := p.SaveState(ctx)
	require.NoError(t, err)
	restored := newProcessor(t, NewHashJoin([]join.Clause{clause}, mapOutput))
	require.NoError(t, restored.RestoreState(ctx, state))

	require.NoError(t, restored.Process(ctx, 0, Item{Payload: datamodel.NewEntry("AAPL", 10)}, out))
	require.NoError(t, restored.Process(ctx, 0, Item{Payload: datamodel.NewEntry("MSFT", 20)}, out))
	assert.Equal(t, []any{datamodel.NewTuple2(10, "Apple"), datamodel.NewTuple2(20, join.Absent)}, out.items)
}

func TestStoreLookup(t *testing.T) {
	ctx := context.Background()
	store := sideinput.NewMemoryStore("names", map[any]any{"AAPL": "Apple"})
	p := newProcessor(t, NewStoreLookup(store, func(v any) any { return v }, func(item, value any) (any, error) {
		if join.IsAbsent(value) {
			return nil, nil
		}
		return datamodel.NewEntry(item, value), nil
	}))
	bp, ok := p.(BatchProcessor)
	require.True(t, ok)
	out := &collector{}
	require.NoError(t, bp.ProcessBatch(ctx, 0, []Item{{Payload: "AAPL"}, {Payload: "MSFT"}}, out))
	assert.Equal(t, []any{datamodel.NewEntry("AAPL", "Apple")}, out.items)
}

func newSinkWriter(t *testing.T, sink sinks.Sink, guarantee dfv1.ProcessingGuarantee, restore []snapshot.Entry) Processor {
	t.Helper()
	p := NewSinkWriter(sink)()
	require.NoError(t, p.Init(context.Background(), testContext(guarantee)))
	require.NoError(t, p.RestoreState(context.Background(), restore))
	return p
}

func writeItems(t *testing.T, p Processor, items ...any) {
	t.Helper()
	batch := make([]Item, 0, len(items))
	for _, it := range items {
		batch = append(batch, Item{Payload: it})
	}
	require.NoError(t, p.(BatchProcessor).ProcessBatch(context.Background(), 0, batch, nil))
}

func TestSinkWriter_AtLeastOnce(t *testing.T) {
	sink := sinks.NewListSink("out")
	p := newSinkWriter(t, sink, dfv1.ProcessingGuaranteeAtLeastOnce, nil)
	writeItems(t, p, 1, 2)
	assert.Equal(t, []any{1, 2}, sink.Items())
}

func TestSinkWriter_ExactlyOnce(t *testing.T) {
	ctx := context.Background()
	sink := sinks.NewListSink("out")
	p := newSinkWriter(t, sink, dfv1.ProcessingGuaranteeExactlyOnce, nil)
	aware := p.(SnapshotAware)

	writeItems(t, p, 1, 2)
	require.NoError(t, aware.OnBarrier(ctx, 1))
	state, err := p.SaveState(ctx)
	require.NoError(t, err)
	writeItems(t, p, 3)
	assert.Empty(t, sink.Items(), "nothing is visible before the snapshot commits")

	require.NoError(t, aware.OnSnapshotCommitted(ctx, 1))
	assert.Equal(t, []any{1, 2}, sink.Items())

	require.NoError(t, p.Complete(ctx, nil))
	require.NoError(t, aware.OnSnapshotCommitted(ctx, math.MaxInt64))
	assert.Equal(t, []any{1, 2, 3}, sink.Items())
	assert.NotEmpty(t, state)
}

func TestSinkWriter_RestoreCommitsPreparedAndAbortsTheRest(t *testing.T) {
	ctx := context.Background()
	sink := sinks.NewListSink("out")
	p := newSinkWriter(t, sink, dfv1.ProcessingGuaranteeExactlyOnce, nil)
	aware := p.(SnapshotAware)

	writeItems(t, p, "covered")
	require.NoError(t, aware.OnBarrier(ctx, 1))
	state, err := p.SaveState(ctx)
	require.NoError(t, err)
	writeItems(t, p, "replayed")
	require.NoError(t, aware.OnBarrier(ctx, 2))
	writeItems(t, p, "pending")
	// the execution fails before snapshot 1 commit reaches the sink and before snapshot 2 completes
	require.NoError(t, p.Close())

	restarted := newSinkWriter(t, sink, dfv1.ProcessingGuaranteeExactlyOnce, state)
	assert.Equal(t, []any{"covered"}, sink.Items())
	require.NoError(t, restarted.(SnapshotAware).OnSnapshotCommitted(ctx, math.MaxInt64))
	assert.Equal(t, []any{"covered"}, sink.Items())
}
