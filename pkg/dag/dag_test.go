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

package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/dataflow/pkg/partition"
	"github.com/numaproj/dataflow/pkg/processor"
	"github.com/numaproj/dataflow/pkg/sources"
	"github.com/numaproj/dataflow/pkg/watermark"
)

func identity(v any) any {
	return v
}

func newTestDAG(t *testing.T, names ...string) *DAG {
	t.Helper()
	d := New()
	require.NoError(t, d.AddVertex(NewSourceVertex(names[0], sources.NewListSource("src", []any{1}), watermark.EventTimePolicy{})))
	for _, n := range names[1:] {
		require.NoError(t, d.AddVertex(NewVertex(n, processor.NewTransform())))
	}
	return d
}

func TestDAG_Validate(t *testing.T) {
	d := newTestDAG(t, "source", "map", "sink")
	require.NoError(t, d.Connect(Between("source", "map")))
	require.NoError(t, d.Connect(Between("map", "sink").PartitionedBy("id", identity).Distribute()))
	require.NoError(t, d.Validate())

	order, err := d.TopologicalOrder()
	require.NoError(t, err)
	var names []string
	for _, v := range order {
		names = append(names, v.Name)
	}
	assert.Equal(t, []string{"source", "map", "sink"}, names)
	assert.Contains(t, d.String(), "map[0] -> sink[0] partitioned(id) distributed")
}

func TestDAG_DuplicateVertex(t *testing.T) {
	d := newTestDAG(t, "source", "map")
	assert.Error(t, d.AddVertex(NewVertex("map", processor.NewTransform())))
	assert.Error(t, d.AddVertex(NewVertex("", processor.NewTransform())))
}

func TestDAG_DanglingEdge(t *testing.T) {
	d := newTestDAG(t, "source", "map")
	assert.Error(t, d.Connect(Between("source", "missing")))
	assert.Error(t, d.Connect(Between("missing", "map")))
}

func TestDAG_Cycle(t *testing.T) {
	d := newTestDAG(t, "source", "a", "b")
	require.NoError(t, d.Connect(Between("source", "a")))
	require.NoError(t, d.Connect(Between("a", "b")))
	require.NoError(t, d.Connect(Between("b", "a").Ordinals(0, 1)))
	err := d.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestDAG_Ordinals(t *testing.T) {
	d := newTestDAG(t, "source", "a", "b")
	require.NoError(t, d.Connect(Between("source", "a")))
	require.NoError(t, d.Connect(Between("source", "b").Ordinals(0, 0)))
	err := d.Validate()
	require.Error(t, err, "two outbound edges on ordinal 0")
	assert.Contains(t, err.Error(), "outbound ordinals")

	d = newTestDAG(t, "source", "a")
	require.NoError(t, d.Connect(Between("source", "a").Ordinals(0, 1)))
	assert.ErrorContains(t, d.Validate(), "inbound ordinals")
}

func TestDAG_KeyedInputs(t *testing.T) {
	d := newTestDAG(t, "source", "agg")
	v, _ := d.Vertex("agg")
	v.RequireKey(0, "word")
	require.NoError(t, d.Connect(Between("source", "agg")))
	assert.ErrorContains(t, d.Validate(), "partitioned by key")

	d = newTestDAG(t, "source", "agg")
	v, _ = d.Vertex("agg")
	v.RequireKey(0, "word")
	require.NoError(t, d.Connect(Between("source", "agg").PartitionedBy("length", identity)))
	assert.ErrorContains(t, d.Validate(), `key "word"`)

	d = newTestDAG(t, "source", "agg")
	v, _ = d.Vertex("agg")
	v.RequireKey(0, "word")
	require.NoError(t, d.Connect(Between("source", "agg").PartitionedBy("word", identity)))
	assert.NoError(t, d.Validate())
}

func TestDAG_VertexKinds(t *testing.T) {
	d := New()
	require.NoError(t, d.AddVertex(&Vertex{Name: "empty"}))
	assert.ErrorContains(t, d.Validate(), "either a processor supplier or a source")

	d = newTestDAG(t, "source", "orphan")
	assert.ErrorContains(t, d.Validate(), "no inbound edge")

	d = newTestDAG(t, "source", "a")
	require.NoError(t, d.Connect(Between("a", "source")))
	assert.ErrorContains(t, d.Validate(), "has inbound edges")
}

func TestEdge_Validate(t *testing.T) {
	assert.Error(t, Edge{From: "a", To: "b", Routing: partition.Partitioned}.Validate())
	assert.Error(t, Between("a", "b").Ordinals(-1, 0).Validate())
	assert.NoError(t, Between("a", "b").Broadcast().WithPriority(-1).Validate())
	assert.Equal(t, "a[0] -> b[1] broadcast priority=-1", Between("a", "b").Ordinals(0, 1).Broadcast().WithPriority(-1).String())
}
