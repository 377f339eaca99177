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
	"fmt"
	"strings"

	"github.com/numaproj/dataflow/pkg/partition"
)

// KeyExtractor is a named partitioning key. Two edges are partitioned the same way when their key names match.
type KeyExtractor struct {
	Name string
	Fn   partition.KeyFn
}

// Edge connects an output ordinal of a vertex to an input ordinal of another one.
type Edge struct {
	From        string
	FromOrdinal int
	To          string
	ToOrdinal   int
	Routing     partition.Policy
	Key         KeyExtractor
	// Distributed edges may cross members, local ones connect the instances of the same member only.
	Distributed bool
	// Priority orders the inputs of a vertex, all the inputs of the lowest value are drained before the next.
	Priority int
}

// Between returns a unicast edge from ordinal 0 of from to ordinal 0 of to.
func Between(from, to string) Edge {
	return Edge{From: from, To: to, Routing: partition.Unicast}
}

// Ordinals returns the edge with the given source and destination ordinals.
func (e Edge) Ordinals(from, to int) Edge {
	e.FromOrdinal, e.ToOrdinal = from, to
	return e
}

// PartitionedBy returns the edge routing every item to the instance owning its key.
func (e Edge) PartitionedBy(name string, fn partition.KeyFn) Edge {
	e.Routing = partition.Partitioned
	e.Key = KeyExtractor{Name: name, Fn: fn}
	return e
}

// Broadcast returns the edge sending every item to all the instances.
func (e Edge) Broadcast() Edge {
	e.Routing = partition.Broadcast
	return e
}

// Isolated returns the edge connecting each producer instance to a single consumer instance.
func (e Edge) Isolated() Edge {
	e.Routing = partition.Isolated
	return e
}

// Distribute returns the distributed edge.
func (e Edge) Distribute() Edge {
	e.Distributed = true
	return e
}

// WithPriority returns the edge with the priority.
func (e Edge) WithPriority(p int) Edge {
	e.Priority = p
	return e
}

// IsPartitioned returns true if the items are routed by key.
func (e Edge) IsPartitioned() bool {
	return e.Routing == partition.Partitioned
}

func (e Edge) Validate() error {
	if e.FromOrdinal < 0 || e.ToOrdinal < 0 {
		return fmt.Errorf("edge %s has a negative ordinal", e)
	}
	if e.IsPartitioned() && (e.Key.Fn == nil || e.Key.Name == "") {
		return fmt.Errorf("partitioned edge %s needs a named key extractor", e)
	}
	return nil
}

func (e Edge) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s[%d] -> %s[%d] %s", e.From, e.FromOrdinal, e.To, e.ToOrdinal, e.Routing)
	if e.IsPartitioned() {
		fmt.Fprintf(&sb, "(%s)", e.Key.Name)
	}
	if e.Distributed {
		sb.WriteString(" distributed")
	}
	if e.Priority != 0 {
		fmt.Fprintf(&sb, " priority=%d", e.Priority)
	}
	return sb.String()
}
