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

/*
Package dag describes the physical plan of a job: vertices running processors, connected by edges that carry the
routing policy of the items. The compiler builds it from a pipeline; it can also be built by hand.
*/
package dag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/numaproj/dataflow/pkg/processor"
	"github.com/numaproj/dataflow/pkg/sources"
	"github.com/numaproj/dataflow/pkg/watermark"
)

// SourceSpec is the source read by a source vertex.
type SourceSpec struct {
	Source    sources.Source
	EventTime watermark.EventTimePolicy
}

// Vertex is a unit of parallel processing.
type Vertex struct {
	Name string
	// LocalParallelism is the number of instances, zero or less uses the engine default.
	LocalParallelism int
	// Supplier creates the processors, it is nil for source vertices.
	Supplier processor.Supplier
	// Source is set for source vertices.
	Source *SourceSpec
	// KeyedInputs maps the ordinals of the inputs that must be partitioned to the name of the required key.
	KeyedInputs map[int]string
}

// NewVertex returns a processing vertex.
func NewVertex(name string, supplier processor.Supplier) *Vertex {
	return &Vertex{Name: name, Supplier: supplier}
}

// NewSourceVertex returns a source vertex.
func NewSourceVertex(name string, src sources.Source, policy watermark.EventTimePolicy) *Vertex {
	return &Vertex{Name: name, Source: &SourceSpec{Source: src, EventTime: policy}}
}

// WithParallelism sets the local parallelism.
func (v *Vertex) WithParallelism(n int) *Vertex {
	v.LocalParallelism = n
	return v
}

// RequireKey marks the input ordinal as keyed by the named key.
func (v *Vertex) RequireKey(ordinal int, keyName string) *Vertex {
	if v.KeyedInputs == nil {
		v.KeyedInputs = make(map[int]string)
	}
	v.KeyedInputs[ordinal] = keyName
	return v
}

// IsSource returns true for source vertices.
func (v *Vertex) IsSource() bool {
	return v.Source != nil
}

// DAG is a directed acyclic graph of vertices.
type DAG struct {
	vertices []*Vertex
	byName   map[string]*Vertex
	edges    []Edge
}

// New returns an empty DAG.
func New() *DAG {
	return &DAG{byName: make(map[string]*Vertex)}
}

// AddVertex adds the vertex, names are unique.
func (d *DAG) AddVertex(v *Vertex) error {
	if v.Name == "" {
		return fmt.Errorf("vertex name is empty")
	}
	if _, ok := d.byName[v.Name]; ok {
		return fmt.Errorf("duplicate vertex name %q", v.Name)
	}
	d.vertices = append(d.vertices, v)
	d.byName[v.Name] = v
	return nil
}

// Connect adds the edge between two vertices of the DAG.
func (d *DAG) Connect(e Edge) error {
	if _, ok := d.byName[e.From]; !ok {
		return fmt.Errorf("edge %s refers to unknown vertex %q", e, e.From)
	}
	if _, ok := d.byName[e.To]; !ok {
		return fmt.Errorf("edge %s refers to unknown vertex %q", e, e.To)
	}
	d.edges = append(d.edges, e)
	return nil
}

// Vertex returns the named vertex.
func (d *DAG) Vertex(name string) (*Vertex, bool) {
	v, ok := d.byName[name]
	return v, ok
}

// Vertices returns the vertices in insertion order.
func (d *DAG) Vertices() []*Vertex {
	out := make([]*Vertex, len(d.vertices))
	copy(out, d.vertices)
	return out
}

// Edges returns the edges in insertion order.
func (d *DAG) Edges() []Edge {
	out := make([]Edge, len(d.edges))
	copy(out, d.edges)
	return out
}

// InboundEdges returns the edges into the vertex ordered by destination ordinal.
func (d *DAG) InboundEdges(name string) []Edge {
	var out []Edge
	for _, e := range d.edges {
		if e.To == name {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ToOrdinal < out[j].ToOrdinal })
	return out
}

// OutboundEdges returns the edges out of the vertex ordered by source ordinal.
func (d *DAG) OutboundEdges(name string) []Edge {
	var out []Edge
	for _, e := range d.edges {
		if e.From == name {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FromOrdinal < out[j].FromOrdinal })
	return out
}

// Validate checks the structure of the DAG: vertex kinds, ordinals, keyed inputs and the absence of cycles.
func (d *DAG) Validate() error {
	if len(d.vertices) == 0 {
		return fmt.Errorf("dag has no vertex")
	}
	for _, e := range d.edges {
		if _, ok := d.byName[e.From]; !ok {
			return fmt.Errorf("dangling edge %s, unknown vertex %q", e, e.From)
		}
		if _, ok := d.byName[e.To]; !ok {
			return fmt.Errorf("dangling edge %s, unknown vertex %q", e, e.To)
		}
		if err := e.Validate(); err != nil {
			return err
		}
	}
	for _, v := range d.vertices {
		if err := d.validateVertex(v); err != nil {
			return err
		}
	}
	_, err := d.TopologicalOrder()
	return err
}

func (d *DAG) validateVertex(v *Vertex) error {
	if (v.Supplier == nil) == (v.Source == nil) {
		return fmt.Errorf("vertex %q must have either a processor supplier or a source", v.Name)
	}
	inbound := d.InboundEdges(v.Name)
	if v.IsSource() && len(inbound) > 0 {
		return fmt.Errorf("source vertex %q has inbound edges", v.Name)
	}
	if !v.IsSource() && len(inbound) == 0 {
		return fmt.Errorf("vertex %q has no inbound edge", v.Name)
	}
	for i, e := range inbound {
		if e.ToOrdinal != i {
			return fmt.Errorf("inbound ordinals of vertex %q must be unique and contiguous from 0, edge %s", v.Name, e)
		}
	}
	for i, e := range d.OutboundEdges(v.Name) {
		if e.FromOrdinal != i {
			return fmt.Errorf("outbound ordinals of vertex %q must be unique and contiguous from 0, edge %s", v.Name, e)
		}
	}
	for ordinal, keyName := range v.KeyedInputs {
		if ordinal >= len(inbound) {
			return fmt.Errorf("vertex %q requires key %q on missing input %d", v.Name, keyName, ordinal)
		}
		e := inbound[ordinal]
		if !e.IsPartitioned() || e.Key.Name != keyName {
			return fmt.Errorf("vertex %q requires input %d partitioned by key %q, edge %s is not", v.Name, ordinal, keyName, e)
		}
	}
	return nil
}

// TopologicalOrder returns the vertices ordered so that every edge goes forward, or an error if there is a cycle.
func (d *DAG) TopologicalOrder() ([]*Vertex, error) {
	inDegree := make(map[string]int, len(d.vertices))
	for _, e := range d.edges {
		inDegree[e.To]++
	}
	var queue []*Vertex
	for _, v := range d.vertices {
		if inDegree[v.Name] == 0 {
			queue = append(queue, v)
		}
	}
	order := make([]*Vertex, 0, len(d.vertices))
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		order = append(order, v)
		for _, e := range d.OutboundEdges(v.Name) {
			inDegree[e.To]--
			if inDegree[e.To] == 0 {
				queue = append(queue, d.byName[e.To])
			}
		}
	}
	if len(order) != len(d.vertices) {
		var cyclic []string
		for _, v := range d.vertices {
			if inDegree[v.Name] > 0 {
				cyclic = append(cyclic, v.Name)
			}
		}
		return nil, fmt.Errorf("dag has a cycle through vertices %s", strings.Join(cyclic, ", "))
	}
	return order, nil
}

// String describes the DAG, one line per vertex followed by its outbound edges.
func (d *DAG) String() string {
	var sb strings.Builder
	for _, v := range d.vertices {
		kind := "processor"
		if v.IsSource() {
			kind = "source"
		}
		parallelism := "default"
		if v.LocalParallelism > 0 {
			parallelism = fmt.Sprint(v.LocalParallelism)
		}
		fmt.Fprintf(&sb, "vertex %q (%s, parallelism=%s)\n", v.Name, kind, parallelism)
		for _, e := range d.OutboundEdges(v.Name) {
			fmt.Fprintf(&sb, "  %s\n", e)
		}
	}
	return sb.String()
}
