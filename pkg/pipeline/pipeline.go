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
Package pipeline holds the logical model of a job: a graph of stages built with a fluent API. A stage is a tagged
variant, its Kind tells which of its fields are set. The compiler turns a pipeline into a physical DAG.
*/
package pipeline

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/multierr"

	"github.com/numaproj/dataflow/pkg/aggregate"
	"github.com/numaproj/dataflow/pkg/join"
	"github.com/numaproj/dataflow/pkg/processor"
	"github.com/numaproj/dataflow/pkg/sideinput"
	"github.com/numaproj/dataflow/pkg/sinks"
	"github.com/numaproj/dataflow/pkg/sources"
	"github.com/numaproj/dataflow/pkg/watermark"
	"github.com/numaproj/dataflow/pkg/window"
)

// Kind is the kind of a stage.
type Kind int

const (
	KindSource Kind = iota
	KindMap
	KindFilter
	KindFlatMap
	// KindAggregate is a batch aggregation, keyed or not, over one input or co-grouping several.
	KindAggregate
	// KindWindowAggregate is a windowed aggregation, keyed or not, over one input or co-grouping several.
	KindWindowAggregate
	KindRollingAggregate
	KindDistinct
	KindHashJoin
	KindMerge
	KindMapUsingStore
	KindSink
)

var kindNames = map[Kind]string{
	KindSource:           "source",
	KindMap:              "map",
	KindFilter:           "filter",
	KindFlatMap:          "flat-map",
	KindAggregate:        "aggregate",
	KindWindowAggregate:  "window-aggregate",
	KindRollingAggregate: "rolling-aggregate",
	KindDistinct:         "distinct",
	KindHashJoin:         "hash-join",
	KindMerge:            "merge",
	KindMapUsingStore:    "map-using-store",
	KindSink:             "sink",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Stateless returns true for the kinds the compiler may fuse.
func (k Kind) Stateless() bool {
	return k == KindMap || k == KindFilter || k == KindFlatMap
}

// Key is a named grouping key.
type Key struct {
	Name string
	Fn   processor.KeyFn
}

// Stage is a node of the pipeline.
type Stage struct {
	ID     int
	Kind   Kind
	Name   string
	Inputs []*Stage
	// Parallelism overrides the default parallelism when positive.
	Parallelism int
	// InType and OutType are the declared item types, checked by the compiler when both ends of a connection declare
	// them.
	InType  reflect.Type
	OutType reflect.Type

	// KindSource
	Source    sources.Source
	EventTime watermark.EventTimePolicy
	// KindMap, KindFilter and KindFlatMap
	Step processor.Step
	// Keys holds the grouping key of every input of a keyed stage, nil for non-keyed aggregations.
	Keys []Key
	// KindAggregate, KindWindowAggregate and KindRollingAggregate
	Op            aggregate.Operation
	Window        window.Definition
	KeyedResult   processor.KeyedResultFn
	WindowResult  processor.WindowResultFn
	RollingResult processor.RollingResultFn
	// KindHashJoin, Inputs[0] is the primary input and Inputs[i] joins with Clauses[i-1].
	Clauses    []join.Clause
	JoinResult processor.JoinResultFn
	// KindMapUsingStore
	Store  sideinput.Store
	Lookup processor.LookupFn
	// KindSink
	Sink sinks.Sink
}

// Keyed returns true if the stage groups its inputs by key.
func (s *Stage) Keyed() bool {
	return len(s.Keys) > 0
}

func (s *Stage) String() string {
	return fmt.Sprintf("%s(%s)", s.Name, s.Kind)
}

// Pipeline is a graph of stages. Building errors are collected and reported by Err, the compiler refuses a pipeline
// with errors. A pipeline is sealed by its first compilation and cannot be modified afterwards.
type Pipeline struct {
	lock   sync.Mutex
	stages []*Stage
	names  map[string]bool
	err    error
	sealed bool
}

// New returns an empty pipeline.
func New() *Pipeline {
	return &Pipeline{names: make(map[string]bool)}
}

// Stages returns the stages in creation order, every stage comes after its inputs.
func (p *Pipeline) Stages() []*Stage {
	p.lock.Lock()
	defer p.lock.Unlock()
	out := make([]*Stage, len(p.stages))
	copy(out, p.stages)
	return out
}

// Downstream returns the stages reading from s, in creation order.
func (p *Pipeline) Downstream(s *Stage) []*Stage {
	var out []*Stage
	for _, candidate := range p.Stages() {
		for _, in := range candidate.Inputs {
			if in == s {
				out = append(out, candidate)
				break
			}
		}
	}
	return out
}

// Err returns the errors recorded while building the pipeline.
func (p *Pipeline) Err() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.err
}

// Seal forbids any further modification.
func (p *Pipeline) Seal() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.sealed = true
}

// Sealed returns true once the pipeline was compiled.
func (p *Pipeline) Sealed() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.sealed
}

// ReadFrom adds a source stage.
func (p *Pipeline) ReadFrom(src sources.Source) *StreamStage {
	s := p.add(&Stage{Kind: KindSource, Source: src})
	if src == nil {
		p.fail(fmt.Errorf("stage %s: source is nil", s.Name))
	}
	return &StreamStage{p: p, s: s}
}

func (p *Pipeline) add(s *Stage, inputs ...*Stage) *Stage {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.sealed {
		p.err = multierr.Append(p.err, fmt.Errorf("pipeline is sealed, cannot add a %s stage", s.Kind))
	}
	for _, in := range inputs {
		if !p.owns(in) {
			p.err = multierr.Append(p.err, fmt.Errorf("%s stage reads from a stage of another pipeline", s.Kind))
		}
	}
	s.ID = len(p.stages)
	s.Name = fmt.Sprintf("%s-%d", s.Kind, s.ID)
	s.Inputs = inputs
	p.stages = append(p.stages, s)
	p.names[s.Name] = true
	return s
}

func (p *Pipeline) owns(s *Stage) bool {
	return s != nil && s.ID < len(p.stages) && p.stages[s.ID] == s
}

func (p *Pipeline) rename(s *Stage, name string) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if name == s.Name {
		return
	}
	if name == "" || p.names[name] {
		p.err = multierr.Append(p.err, fmt.Errorf("stage %s: invalid or duplicate name %q", s.Name, name))
		return
	}
	delete(p.names, s.Name)
	p.names[name] = true
	s.Name = name
}

func (p *Pipeline) fail(err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.err = multierr.Append(p.err, err)
}
