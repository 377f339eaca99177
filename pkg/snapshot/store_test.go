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

package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/dataflow/pkg/partition"
	"github.com/numaproj/dataflow/pkg/shared/kvs/inmem"
)

func TestSelectReplicas(t *testing.T) {
	assert.Equal(t, []string{"b", "c"}, SelectReplicas([]string{"c", "a", "b"}, "b", 1))
	assert.Equal(t, []string{"c", "a"}, SelectReplicas([]string{"a", "b", "c"}, "c", 1))
	assert.Equal(t, []string{"a", "b", "c"}, SelectReplicas([]string{"a", "b", "c"}, "a", 5))
	assert.Equal(t, []string{"a"}, SelectReplicas([]string{"a", "c"}, "b", 0), "an unreachable local member is skipped")
	assert.Empty(t, SelectReplicas(nil, "a", 1))
}

func TestMemberStore(t *testing.T) {
	s := NewMemberStore()
	states := map[InstanceID]InstanceState{src0: {Entries: []Entry{InstanceEntry(1)}}}
	s.Put(1, []string{"a", "b"}, states)
	states[src0] = InstanceState{}

	got, replica, ok := s.Get(1, []string{"c", "b"})
	require.True(t, ok)
	assert.Equal(t, "b", replica)
	assert.Equal(t, []Entry{InstanceEntry(1)}, got[src0].Entries, "the store keeps a copy")

	s.Forget("b")
	_, _, ok = s.Get(1, []string{"c", "b"})
	assert.False(t, ok)
	_, _, ok = s.Get(1, []string{"a"})
	assert.True(t, ok)

	s.Delete(1)
	assert.Empty(t, s.Replicas(1))
}

func TestManifestStore(t *testing.T) {
	ctx := context.Background()
	kv, err := inmem.NewKVInMemKVStore(ctx, "snapshots")
	require.NoError(t, err)
	defer kv.Close()
	s := NewManifestStore(kv)

	m, err := s.Latest(ctx, "orders")
	require.NoError(t, err)
	assert.Nil(t, m)

	require.NoError(t, s.Save(ctx, &Manifest{Job: "orders", ID: 3, Replicas: []string{"a"}}))
	require.NoError(t, s.Save(ctx, &Manifest{Job: "orders", ID: 12, Replicas: []string{"b"}}))
	require.NoError(t, s.Save(ctx, &Manifest{Job: "orders-v2", ID: 1}))

	m, err = s.Latest(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(12), m.ID)
	assert.Equal(t, []string{"b"}, m.Replicas)

	ids, err := s.IDs(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 12}, ids)

	require.NoError(t, s.Delete(ctx, "orders", 3))
	require.NoError(t, s.Delete(ctx, "orders", 3))
	m, err = s.Get(ctx, "orders", 3)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestRepartition(t *testing.T) {
	states := map[InstanceID]InstanceState{
		{Vertex: "count", Index: 0}: {Entries: []Entry{KeyedEntry("apple", 1), KeyedEntry("pear", 2), InstanceEntry("x0")}},
		{Vertex: "count", Index: 1}: {Entries: []Entry{KeyedEntry("plum", 3), InstanceEntry("x1")}, Completed: true},
		{Vertex: "gone", Index: 0}:  {Entries: []Entry{InstanceEntry("y")}},
	}
	parallelism := func(v string) int {
		if v == "count" {
			return 3
		}
		return 0
	}
	out := Repartition(states, parallelism)
	require.Len(t, out, 3)
	for _, key := range []string{"apple", "pear", "plum"} {
		owner := out[InstanceID{Vertex: "count", Index: partition.Partition(key, 3)}]
		found := false
		for _, e := range owner.Entries {
			found = found || e.Key == key
		}
		assert.True(t, found, key)
	}
	var unkeyed []any
	for i := 0; i < 3; i++ {
		st := out[InstanceID{Vertex: "count", Index: i}]
		assert.False(t, st.Completed, "not every old instance completed")
		for _, e := range st.Entries {
			if !e.Keyed {
				unkeyed = append(unkeyed, e.Value)
				assert.Equal(t, e.Value, []any{"x0", "x1"}[i])
			}
		}
	}
	assert.Len(t, unkeyed, 2)

	same := Repartition(states, func(string) int { return 2 })
	assert.False(t, same[InstanceID{Vertex: "count", Index: 0}].Completed)
	assert.True(t, same[InstanceID{Vertex: "count", Index: 1}].Completed)
}
