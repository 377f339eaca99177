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
	"sort"

	"github.com/numaproj/dataflow/pkg/partition"
)

// Repartition assigns the saved states to the instances of a new execution. Keyed entries go to the instance owning
// the key under the new parallelism, the other entries to the instance with the same index modulo the parallelism.
// Vertices with no parallelism in the new execution are dropped.
//
// An instance is restored as completed if the same instance completed; when the parallelism changed, only if every
// instance of the vertex completed.
func Repartition(states map[InstanceID]InstanceState, parallelism func(vertex string) int) map[InstanceID]InstanceState {
	byVertex := make(map[string][]InstanceID)
	for id := range states {
		byVertex[id.Vertex] = append(byVertex[id.Vertex], id)
	}
	out := make(map[InstanceID]InstanceState)
	for vertex, ids := range byVertex {
		n := parallelism(vertex)
		if n <= 0 {
			continue
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].Index < ids[j].Index })
		allCompleted := true
		for _, id := range ids {
			allCompleted = allCompleted && states[id].Completed
		}
		next := make([]InstanceState, n)
		for _, id := range ids {
			for _, e := range states[id].Entries {
				i := id.Index % n
				if e.Keyed {
					i = partition.Partition(e.Key, n)
				}
				next[i].Entries = append(next[i].Entries, e)
			}
		}
		for i := range next {
			if len(ids) == n {
				next[i].Completed = states[InstanceID{Vertex: vertex, Index: i}].Completed
			} else {
				next[i].Completed = allCompleted
			}
			out[InstanceID{Vertex: vertex, Index: i}] = next[i]
		}
	}
	return out
}
