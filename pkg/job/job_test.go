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

package job

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/numaproj/dataflow/pkg/aggregate"
	dfv1 "github.com/numaproj/dataflow/pkg/apis/dataflow/v1alpha1"
	"github.com/numaproj/dataflow/pkg/cluster"
	"github.com/numaproj/dataflow/pkg/config"
	"github.com/numaproj/dataflow/pkg/datamodel"
	"github.com/numaproj/dataflow/pkg/join"
	"github.com/numaproj/dataflow/pkg/pipeline"
	"github.com/numaproj/dataflow/pkg/shared/kvs/inmem"
	"github.com/numaproj/dataflow/pkg/sinks"
	"github.com/numaproj/dataflow/pkg/sources"
	"github.com/numaproj/dataflow/pkg/window"
)

func newEngine(t *testing.T, members *cluster.StaticMembership) *Engine {
	t.Helper()
	if members == nil {
		var err error
		members, err = cluster.NewStaticMembership("a", []string{"a"})
		require.NoError(t, err)
	}
	kv, err := inmem.NewKVInMemKVStore(context.Background(), "snapshots")
	require.NoError(t, err)
	t.Cleanup(kv.Close)
	return NewEngine(members, kv,
		WithExecutionConfig(config.ExecutionConfig{DefaultParallelism: 2, BufferLength: 64, ReadBatchSize: 16}),
		WithRestartBackoff(wait.Backoff{Duration: time.Millisecond, Factor: 1, Steps: 100}))
}

func submit(t *testing.T, e *Engine, p *pipeline.Pipeline, cfg dfv1.JobConfig) (*Job, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	j, err := e.Submit(ctx, p, cfg)
	require.NoError(t, err)
	return j, ctx
}

func TestJob_BatchWordCount(t *testing.T) {
	counts := sinks.NewMapSink("counts")
	p := pipeline.New()
	p.ReadFrom(sources.NewListSource("lines", []any{"the quick brown fox", "the lazy dog"})).
		FlatMap(func(v any) ([]any, error) {
			var out []any
			for _, w := range strings.Fields(strings.ToLower(v.(string))) {
				out = append(out, w)
			}
			return out, nil
		}).
		Filter(func(v any) (bool, error) { return v.(string) != "", nil }).
		GroupingKey("word", func(v any) any { return v }).
		Aggregate(aggregate.Counting()).
		WriteTo(counts)

	j, ctx := submit(t, newEngine(t, nil), p, dfv1.NewJobConfig("word-count", dfv1.ProcessingGuaranteeNone))
	require.NoError(t, j.Join(ctx))
	assert.Equal(t, dfv1.JobStatusCompleted, j.Status())
	assert.Equal(t, map[any]any{
		"the": int64(2), "quick": int64(1), "brown": int64(1), "fox": int64(1), "lazy": int64(1), "dog": int64(1),
	}, counts.Snapshot())
}

func TestJob_HashJoinEnrichment(t *testing.T) {
	out := sinks.NewListSink("enriched")
	record := map[string]any{"productId": 1}
	p := pipeline.New()
	trades := p.ReadFrom(sources.NewListSource("trades", []any{record}))
	products := p.ReadFrom(sources.NewMapEntriesSource("products", map[int]string{1: "ProductA"}))
	trades.HashJoin(products,
		join.OnKeys(func(v any) any { return v.(map[string]any)["productId"] }, func(v any) any { return v.(datamodel.Entry).Key }).
			Projecting(func(v any) any { return v.(datamodel.Entry).Value }),
		func(primary, match any) any { return datamodel.NewTuple2(primary, match) }).
		WriteTo(out)

	j, ctx := submit(t, newEngine(t, nil), p, dfv1.NewJobConfig("enrich", dfv1.ProcessingGuaranteeNone))
	require.NoError(t, j.Join(ctx))
	assert.Equal(t, []any{datamodel.NewTuple2(record, "ProductA")}, out.Items())
}

func TestJob_SlidingWindowCount(t *testing.T) {
	const (
		step   = int64(10)
		length = int64(120_000)
	)
	var events []any
	for ts := int64(0); ts < length; ts += step {
		events = append(events, datamodel.NewEntry("k", ts))
	}
	out := sinks.NewListSink("counts")
	p := pipeline.New()
	p.ReadFrom(sources.NewListSource("events", events)).
		WithTimestamps(func(v any) time.Time { return time.UnixMilli(v.(datamodel.Entry).Value.(int64)) }, 0).
		GroupingKey("key", func(v any) any { return v.(datamodel.Entry).Key }).
		Window(window.Sliding(time.Second, 10*time.Millisecond)).
		Aggregate(aggregate.Counting()).
		WriteTo(out)

	j, ctx := submit(t, newEngine(t, nil), p, dfv1.NewJobConfig("sliding", dfv1.ProcessingGuaranteeNone))
	require.NoError(t, j.Join(ctx))
	covered := 0
	for _, item := range out.Items() {
		r := item.(window.KeyedWindowResult)
		assert.Equal(t, "k", r.Key)
		if r.Start.UnixMilli() >= 0 && r.End.UnixMilli() <= length {
			covered++
			assert.Equal(t, int64(100), r.Value, "window %v", r)
		}
	}
	assert.Equal(t, int((length-1000)/step)+1, covered)
}

func TestJob_RollingMax(t *testing.T) {
	out := sinks.NewListSink("max")
	p := pipeline.New()
	p.ReadFrom(sources.NewListSource("trades", []any{10, 7, 15, 12})).
		SetLocalParallelism(1).
		GroupingKey("all", func(any) any { return "all" }).
		RollingAggregateMapped(aggregate.MaxBy(func(a, b any) int { return a.(int) - b.(int) }),
			func(_, _, result any) any { return result }).
		WriteTo(out).
		SetLocalParallelism(1)

	j, ctx := submit(t, newEngine(t, nil), p, dfv1.NewJobConfig("rolling-max", dfv1.ProcessingGuaranteeNone))
	require.NoError(t, j.Join(ctx))
	assert.Equal(t, []any{10, 10, 15, 15}, out.Items())
}

func TestJob_RestartFromSnapshot(t *testing.T) {
	journal := sources.NewJournal("trades", 2)
	counts := sinks.NewMapSink("counts")
	armed := atomic.NewBool(false)
	crashed := atomic.NewBool(false)
	processed := atomic.NewInt64(0)
	p := pipeline.New()
	p.ReadFrom(journal.Source()).
		Map(func(v any) (any, error) {
			if armed.Load() && crashed.CompareAndSwap(false, true) {
				return nil, errors.New("member crashed")
			}
			processed.Inc()
			return v, nil
		}).
		GroupingKey("symbol", func(v any) any { return v.(datamodel.Entry).Key }).
		RollingAggregate(aggregate.Counting()).
		WriteTo(counts)

	e := newEngine(t, nil)
	cfg := dfv1.NewJobConfig("trades", dfv1.ProcessingGuaranteeExactlyOnce).
		WithSnapshotInterval(20 * time.Millisecond).
		WithMaxRestarts(3)
	j, ctx := submit(t, e, p, cfg)

	symbols := []string{"AAPL", "MSFT", "GOOG"}
	expected := map[any]any{}
	appendN := func(from, to int) {
		for i := from; i < to; i++ {
			s := symbols[i%len(symbols)]
			_, _, err := journal.Append(s, datamodel.NewEntry(s, i), time.UnixMilli(int64(i)))
			require.NoError(t, err)
			n, _ := expected[s].(int64)
			expected[s] = n + 1
		}
	}
	appendN(0, 50)
	require.Eventually(t, func() bool {
		m, err := e.manifests.Latest(ctx, j.ID())
		if err != nil || m == nil {
			return false
		}
		var read int64
		for _, pos := range m.Sources {
			for _, o := range pos.Offsets {
				read += o
			}
		}
		return read == 50
	}, 10*time.Second, 5*time.Millisecond, "a snapshot covers the first events")

	armed.Store(true)
	appendN(50, 100)
	require.Eventually(t, func() bool { return j.Restarts() == 1 }, 10*time.Second, 5*time.Millisecond)
	journal.Seal()

	require.NoError(t, j.Join(ctx))
	assert.Equal(t, dfv1.JobStatusCompleted, j.Status())
	assert.Equal(t, expected, counts.Snapshot())
	assert.Less(t, processed.Load(), int64(150), "only the events after the snapshot are processed again")
	m, err := e.manifests.Latest(ctx, j.ID())
	require.NoError(t, err)
	assert.Nil(t, m, "the snapshots of a completed job are deleted")
}

func failingPipeline(out sinks.Sink) *pipeline.Pipeline {
	p := pipeline.New()
	p.ReadFrom(sources.NewListSource("numbers", []any{1, 2, 3})).
		Map(func(v any) (any, error) { return nil, errors.New("boom") }).
		WriteTo(out)
	return p
}

func TestJob_FailsWithoutSnapshots(t *testing.T) {
	j, ctx := submit(t, newEngine(t, nil), failingPipeline(sinks.NewListSink("out")), dfv1.NewJobConfig("fail", dfv1.ProcessingGuaranteeNone))
	err := j.Join(ctx)
	var jfe *JobFailedError
	require.ErrorAs(t, err, &jfe)
	assert.Equal(t, 0, jfe.Restarts)
	assert.Equal(t, dfv1.JobStatusFailed, j.Status())
	assert.Error(t, j.IsHealthy(ctx))
}

func TestJob_RestartBudget(t *testing.T) {
	cfg := dfv1.NewJobConfig("flaky", dfv1.ProcessingGuaranteeAtLeastOnce).WithMaxRestarts(2)
	j, ctx := submit(t, newEngine(t, nil), failingPipeline(sinks.NewListSink("out")), cfg)
	err := j.Join(ctx)
	var jfe *JobFailedError
	require.ErrorAs(t, err, &jfe)
	assert.Equal(t, 2, jfe.Restarts)
	assert.Equal(t, 2, j.Restarts())
	assert.Equal(t, dfv1.JobStatusFailed, j.Status())
}

func TestJob_CancelTakesFinalSnapshot(t *testing.T) {
	journal := sources.NewJournal("events", 1)
	out := sinks.NewListSink("out")
	p := pipeline.New()
	p.ReadFrom(journal.Source()).WriteTo(out)
	cfg := dfv1.NewJobConfig("cancel", dfv1.ProcessingGuaranteeExactlyOnce).WithSnapshotInterval(time.Hour)
	j, ctx := submit(t, newEngine(t, nil), p, cfg)

	for i := 0; i < 5; i++ {
		_, _, err := journal.Append(i, i, time.UnixMilli(int64(i)))
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return j.Status() == dfv1.JobStatusRunning }, 5*time.Second, time.Millisecond)
	assert.Zero(t, out.Len(), "nothing is committed before a snapshot")
	j.Cancel()
	require.NoError(t, j.Join(ctx))
	assert.Equal(t, dfv1.JobStatusTerminated, j.Status())
	assert.Equal(t, int64(1), j.Coordinator().Committed())
}

func TestJob_SplitBrainProtection(t *testing.T) {
	members, err := cluster.NewStaticMembership("a", []string{"a", "b", "c"})
	require.NoError(t, err)
	journal := sources.NewJournal("events", 1)
	out := sinks.NewListSink("out")
	p := pipeline.New()
	p.ReadFrom(journal.Source()).WriteTo(out)
	cfg := dfv1.NewJobConfig("guarded", dfv1.ProcessingGuaranteeAtLeastOnce).WithSnapshotInterval(time.Hour)
	cfg.SplitBrainProtectionEnabled = true
	j, ctx := submit(t, newEngine(t, members), p, cfg)

	require.Eventually(t, func() bool { return j.Status() == dfv1.JobStatusRunning }, 5*time.Second, time.Millisecond)
	require.NoError(t, members.Kill("b"))
	require.Eventually(t, func() bool { return j.Restarts() == 1 && j.Status() == dfv1.JobStatusRunning }, 5*time.Second, time.Millisecond,
		"the quorum is kept, the job restarts without the lost member")
	require.NoError(t, members.Kill("c"))
	require.Eventually(t, func() bool { return j.Status() == dfv1.JobStatusSuspended }, 5*time.Second, time.Millisecond)
	assert.Error(t, j.IsHealthy(ctx))

	require.NoError(t, members.Revive("c"))
	require.Eventually(t, func() bool { return j.Status() == dfv1.JobStatusRunning }, 5*time.Second, time.Millisecond)
	assert.Equal(t, 1, j.Restarts(), "a suspension does not use the restart budget")

	_, _, err = journal.Append(1, "x", time.UnixMilli(1))
	require.NoError(t, err)
	journal.Seal()
	require.NoError(t, j.Join(ctx))
	assert.Equal(t, dfv1.JobStatusCompleted, j.Status())
	assert.Equal(t, []any{"x"}, out.Items())
}

func TestJob_MemberLost(t *testing.T) {
	tests := []struct {
		name      string
		guarantee dfv1.ProcessingGuarantee
		restarts  int
		status    dfv1.JobStatus
	}{
		{name: "no guarantee fails", guarantee: dfv1.ProcessingGuaranteeNone, restarts: 0, status: dfv1.JobStatusFailed},
		{name: "at least once restarts", guarantee: dfv1.ProcessingGuaranteeAtLeastOnce, restarts: 1, status: dfv1.JobStatusCompleted},
		{name: "exactly once restarts", guarantee: dfv1.ProcessingGuaranteeExactlyOnce, restarts: 1, status: dfv1.JobStatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			members, err := cluster.NewStaticMembership("a", []string{"a", "b", "c"})
			require.NoError(t, err)
			journal := sources.NewJournal("events", 1)
			counts := sinks.NewMapSink("counts")
			p := pipeline.New()
			p.ReadFrom(journal.Source()).
				GroupingKey("key", func(v any) any { return v }).
				RollingAggregate(aggregate.Counting()).
				WriteTo(counts)
			cfg := dfv1.NewJobConfig("member-lost", tt.guarantee).WithSnapshotInterval(10 * time.Millisecond)
			j, ctx := submit(t, newEngine(t, members), p, cfg)

			for i := 0; i < 3; i++ {
				_, _, err := journal.Append("k", "k", time.UnixMilli(int64(i)))
				require.NoError(t, err)
			}
			require.Eventually(t, func() bool { return counts.Snapshot()["k"] == int64(3) }, 5*time.Second, time.Millisecond)
			if tt.guarantee != dfv1.ProcessingGuaranteeNone {
				e := j.engine
				require.Eventually(t, func() bool {
					m, err := e.manifests.Latest(ctx, j.ID())
					if err != nil || m == nil {
						return false
					}
					var read int64
					for _, pos := range m.Sources {
						for _, o := range pos.Offsets {
							read += o
						}
					}
					return read == 3
				}, 5*time.Second, time.Millisecond, "a snapshot covers the events")
			}
			require.NoError(t, members.Kill("b"))

			if tt.status == dfv1.JobStatusFailed {
				err := j.Join(ctx)
				var jfe *JobFailedError
				require.ErrorAs(t, err, &jfe)
				assert.ErrorIs(t, err, ErrMemberLost)
				assert.Equal(t, tt.status, j.Status())
				assert.Equal(t, tt.restarts, j.Restarts())
				return
			}
			require.Eventually(t, func() bool { return j.Restarts() == tt.restarts && j.Status() == dfv1.JobStatusRunning },
				5*time.Second, time.Millisecond)
			_, _, err = journal.Append("k", "k", time.UnixMilli(3))
			require.NoError(t, err)
			journal.Seal()
			require.NoError(t, j.Join(ctx))
			assert.Equal(t, tt.status, j.Status())
			assert.Equal(t, int64(4), counts.Snapshot()["k"], "the state is restored from the last snapshot")
		})
	}
}

func TestEngine_Submit(t *testing.T) {
	e := newEngine(t, nil)
	journal := sources.NewJournal("events", 1)
	p := pipeline.New()
	p.ReadFrom(journal.Source()).WriteTo(sinks.NewListSink("out"))
	j, ctx := submit(t, e, p, dfv1.NewJobConfig("dup", dfv1.ProcessingGuaranteeNone))
	assert.NotEmpty(t, j.ID())

	again := pipeline.New()
	again.ReadFrom(journal.Source()).WriteTo(sinks.NewListSink("out"))
	_, err := e.Submit(ctx, again, dfv1.NewJobConfig("dup", dfv1.ProcessingGuaranteeNone))
	assert.Error(t, err, "a job with the same name is running")

	bad := dfv1.NewJobConfig("bad", "SOMETIMES")
	_, err = e.Submit(ctx, pipeline.New(), bad)
	assert.Error(t, err)

	got, ok := e.Job("dup")
	require.True(t, ok)
	assert.Same(t, j, got)
	assert.Len(t, e.Jobs(), 1)

	require.NoError(t, e.Shutdown(ctx))
	assert.Equal(t, dfv1.JobStatusTerminated, j.Status())
}
