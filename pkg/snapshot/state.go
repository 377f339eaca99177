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
	"fmt"
)

// InstanceID identifies one parallel instance of a vertex.
type InstanceID struct {
	Vertex string
	Index  int
}

func (id InstanceID) String() string {
	return fmt.Sprintf("%s#%d", id.Vertex, id.Index)
}

// Entry is one unit of saved state. Keyed entries are routed to the instance owning the key on restore; the other
// entries go back to the instance with the same index.
type Entry struct {
	Keyed bool
	Key   any
	Value any
}

// KeyedEntry returns an entry belonging to the owner of the key.
func KeyedEntry(key, value any) Entry {
	return Entry{Keyed: true, Key: key, Value: value}
}

// InstanceEntry returns an entry belonging to the instance index.
func InstanceEntry(value any) Entry {
	return Entry{Value: value}
}

// SourcePosition is the state saved by a source instance.
type SourcePosition struct {
	Offsets   map[int32]int64 `json:"offsets"`
	Watermark int64           `json:"watermark"`
}

// InstanceState is the saved state of one instance.
type InstanceState struct {
	Entries []Entry
	// Completed is true if the instance had processed all its input when the state was saved.
	Completed bool
}

// Handler is the part of the coordinator the running instances talk to.
type Handler interface {
	// RequestedSnapshot returns the id of the latest requested snapshot, sources poll it.
	RequestedSnapshot() int64
	// Ack delivers the state saved by an instance for the snapshot.
	Ack(id int64, instance InstanceID, entries []Entry)
	// Completed delivers the final state of an instance that processed all its input.
	Completed(instance InstanceID, entries []Entry)
}
