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
Package compiler turns a pipeline into the physical DAG run by the engine. It assigns the parallelism of every
vertex, fuses the chains of stateless stages, derives the routing of every edge from the semantics of the consuming
stage and splits the windowed aggregations in two vertices. Compilation is deterministic and has no side effect
other than sealing the pipeline.
*/
package compiler

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/numaproj/dataflow/pkg/dag"
	"github.com/numaproj/dataflow/pkg/partition"
	"github.com/numaproj/dataflow/pkg/pipeline"
	"github.com/numaproj/dataflow/pkg/processor"
	"github.com/numaproj/dataflow/pkg/shared/logging"
	"github.com/numaproj/dataflow/pkg/watermark"
)

// frameKeyName names the key partitioning the frame partials between the two window vertices.
const frameKeyName = "window-frame-key"

// EngineContext holds the engine settings the compilation depends on.
type EngineContext struct {
	// DefaultParallelism is the parallelism of the vertices without override, the number of CPUs when not positive.
	DefaultParallelism int
}

// CompileError is returned when the pipeline cannot be compiled.
type CompileError struct {
	// Stage is the name of the offending stage, empty when the error is not specific to one.
	Stage string
	Err   error
}

func (e *CompileError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("failed to compile pipeline: %v", e.Err)
	}
	return fmt.Sprintf("failed to compile pipeline, stage %q: %v", e.Stage, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

func stageError(s *pipeline.Stage, format string, args ...any) *CompileError {
	return &CompileError{Stage: s.Name, Err: fmt.Errorf(format, args...)}
}

// Compile validates the pipeline and returns its DAG.
func Compile(ctx context.Context, ectx EngineContext, p *pipeline.Pipeline) (*dag.DAG, error) {
	if err := p.Err(); err != nil {
		return nil, &CompileError{Err: err}
	}
	p.Seal()
	if ectx.DefaultParallelism <= 0 {
		ectx.DefaultParallelism = runtime.NumCPU()
	}
	c := &compilation{
		ectx:        ectx,
		p:           p,
		d:           dag.New(),
		log:         logging.FromContext(ctx).With("component", "compiler"),
		downstream:  make(map[*pipeline.Stage][]*pipeline.Stage),
		in:          make(map[*pipeline.Stage]*dag.Vertex),
		out:         make(map[*pipeline.Stage]*dag.Vertex),
		steps:       make(map[*dag.Vertex][]processor.Step),
		outOrdinals: make(map[*dag.Vertex]int),
		sources:     make(map[*pipeline.Stage][]*pipeline.Stage),
	}
	stages := p.Stages()
	if len(stages) == 0 {
		return nil, &CompileError{Err: fmt.Errorf("pipeline has no stage")}
	}
	for _, s := range stages {
		for _, in := range s.Inputs {
			c.downstream[in] = append(c.downstream[in], s)
		}
	}
	for _, s := range stages {
		if err := c.check(s); err != nil {
			return nil, err
		}
	}
	for _, s := range stages {
		if err := c.compile(s); err != nil {
			return nil, err
		}
	}
	for v, steps := range c.steps {
		v.Supplier = processor.NewTransform(steps...)
	}
	if err := c.d.Validate(); err != nil {
		return nil, &CompileError{Err: err}
	}
	c.log.Debugw("Compiled pipeline", zap.Int("stages", len(stages)), zap.Int("vertices", len(c.d.Vertices())))
	return c.d, nil
}

type compilation struct {
	ectx EngineContext
	p    *pipeline.Pipeline
	d    *dag.DAG
	log  *zap.SugaredLogger
	// downstream holds the readers of every stage.
	downstream map[*pipeline.Stage][]*pipeline.Stage
	// in and out hold the vertex receiving the inputs of a stage and the one emitting its output.
	in  map[*pipeline.Stage]*dag.Vertex
	out map[*pipeline.Stage]*dag.Vertex
	// steps holds the fused steps of the transform vertices.
	steps       map[*dag.Vertex][]processor.Step
	outOrdinals map[*dag.Vertex]int
	sources     map[*pipeline.Stage][]*pipeline.Stage
}

// check validates the stage against its inputs.
func (c *compilation) check(s *pipeline.Stage) error {
	if len(c.downstream[s]) == 0 && s.Kind != pipeline.KindSink {
		return stageError(s, "%s stage is not connected to a sink", s.Kind)
	}
	for _, in := range s.Inputs {
		if in.OutType != nil && s.InType != nil && !in.OutType.AssignableTo(s.InType) {
			return stageError(s, "input type %v does not match the output type %v of stage %q", s.InType, in.OutType, in.Name)
		}
	}
	switch s.Kind {
	case pipeline.KindAggregate:
		for _, src := range c.sourcesOf(s) {
			if !src.Source.Bounded() {
				return stageError(s, "aggregation over the unbounded source %q needs a window", src.Name)
			}
		}
	case pipeline.KindWindowAggregate:
		for _, src := range c.sourcesOf(s) {
			if !src.EventTime.Enabled {
				return stageError(s, "window over source %q which has no timestamps", src.Name)
			}
		}
	}
	return nil
}

// sourcesOf returns the source stages upstream of s.
func (c *compilation) sourcesOf(s *pipeline.Stage) []*pipeline.Stage {
	if srcs, ok := c.sources[s]; ok {
		return srcs
	}
	var srcs []*pipeline.Stage
	if s.Kind == pipeline.KindSource {
		srcs = []*pipeline.Stage{s}
	}
	seen := make(map[*pipeline.Stage]bool)
	for _, in := range s.Inputs {
		for _, src := range c.sourcesOf(in) {
			if !seen[src] {
				seen[src] = true
				srcs = append(srcs, src)
			}
		}
	}
	c.sources[s] = srcs
	return srcs
}

// latePolicy returns the late policy of the first upstream source handing its late items to a side output.
func (c *compilation) latePolicy(s *pipeline.Stage) watermark.LatePolicy {
	for _, src := range c.sourcesOf(s) {
		if src.EventTime.Late.Name() != watermark.LateDrop().Name() {
			return src.EventTime.Late
		}
	}
	return watermark.LateDrop()
}

func (c *compilation) parallelism(s *pipeline.Stage) int {
	if s.Parallelism > 0 {
		return s.Parallelism
	}
	return c.ectx.DefaultParallelism
}

// sinkParallelism defaults to the parallelism of the upstream vertex, so that no sink instance is left without input.
func (c *compilation) sinkParallelism(s *pipeline.Stage) int {
	if s.Parallelism > 0 || len(s.Inputs) != 1 {
		return c.parallelism(s)
	}
	if up := c.out[s.Inputs[0]]; up != nil && up.LocalParallelism > 0 {
		return up.LocalParallelism
	}
	return c.parallelism(s)
}

func keyFns(s *pipeline.Stage) []processor.KeyFn {
	if !s.Keyed() {
		return nil
	}
	fns := make([]processor.KeyFn, len(s.Keys))
	for i, k := range s.Keys {
		fns[i] = k.Fn
	}
	return fns
}

func (c *compilation) addVertex(s *pipeline.Stage, v *dag.Vertex) error {
	if err := c.d.AddVertex(v); err != nil {
		return &CompileError{Stage: s.Name, Err: err}
	}
	return nil
}

// connect adds the edge from the output vertex of the stage to the input ordinal of the vertex.
func (c *compilation) connect(from *pipeline.Stage, to *dag.Vertex, toOrdinal int, shape func(dag.Edge) dag.Edge) error {
	fromV := c.out[from]
	ordinal := c.outOrdinals[fromV]
	c.outOrdinals[fromV]++
	e := dag.Between(fromV.Name, to.Name).Ordinals(ordinal, toOrdinal)
	if shape != nil {
		e = shape(e)
	}
	return c.d.Connect(e)
}

// connectInputs connects every input of the stage to the vertex, in input order.
func (c *compilation) connectInputs(s *pipeline.Stage, v *dag.Vertex, shape func(i int, e dag.Edge) dag.Edge) error {
	for i, in := range s.Inputs {
		i := i
		var fn func(dag.Edge) dag.Edge
		if shape != nil {
			fn = func(e dag.Edge) dag.Edge { return shape(i, e) }
		}
		if err := c.connect(in, v, i, fn); err != nil {
			return &CompileError{Stage: s.Name, Err: err}
		}
	}
	return nil
}

// partitioned routes every input by its key and requires the vertex input to be keyed.
func partitioned(s *pipeline.Stage, v *dag.Vertex, distributed bool) func(int, dag.Edge) dag.Edge {
	return func(i int, e dag.Edge) dag.Edge {
		k := s.Keys[i]
		v.RequireKey(i, k.Name)
		e = e.PartitionedBy(k.Name, partition.KeyFn(k.Fn))
		if distributed {
			e = e.Distribute()
		}
		return e
	}
}

func distributed(_ int, e dag.Edge) dag.Edge {
	return e.Distribute()
}

// fusable returns true if the stateless stage can join the vertex of its input.
func (c *compilation) fusable(s *pipeline.Stage) bool {
	if len(s.Inputs) != 1 {
		return false
	}
	in := s.Inputs[0]
	if !in.Kind.Stateless() || len(c.downstream[in]) != 1 {
		return false
	}
	v := c.out[in]
	return s.Parallelism == 0 || s.Parallelism == v.LocalParallelism
}

func (c *compilation) compile(s *pipeline.Stage) error {
	single := func(v *dag.Vertex) {
		c.in[s], c.out[s] = v, v
	}
	switch s.Kind {
	case pipeline.KindSource:
		v := dag.NewSourceVertex(s.Name, s.Source, s.EventTime).WithParallelism(c.parallelism(s))
		single(v)
		return c.addVertex(s, v)

	case pipeline.KindMap, pipeline.KindFilter, pipeline.KindFlatMap:
		if c.fusable(s) {
			v := c.out[s.Inputs[0]]
			c.steps[v] = append(c.steps[v], s.Step)
			single(v)
			c.log.Debugw("Fused stage", zap.String("stage", s.Name), zap.String("vertex", v.Name))
			return nil
		}
		v := dag.NewVertex(s.Name, nil).WithParallelism(c.parallelism(s))
		c.steps[v] = []processor.Step{s.Step}
		single(v)
		if err := c.addVertex(s, v); err != nil {
			return err
		}
		return c.connectInputs(s, v, nil)

	case pipeline.KindMerge:
		v := dag.NewVertex(s.Name, processor.NewTransform()).WithParallelism(c.parallelism(s))
		single(v)
		if err := c.addVertex(s, v); err != nil {
			return err
		}
		return c.connectInputs(s, v, nil)

	case pipeline.KindAggregate:
		v := dag.NewVertex(s.Name, processor.NewGroupAggregate(keyFns(s), s.Op, s.KeyedResult))
		shape := distributed
		if s.Keyed() {
			v.WithParallelism(c.parallelism(s))
			shape = partitioned(s, v, true)
		} else {
			c.forceSingle(s, v)
		}
		single(v)
		if err := c.addVertex(s, v); err != nil {
			return err
		}
		return c.connectInputs(s, v, shape)

	case pipeline.KindWindowAggregate:
		return c.compileWindow(s)

	case pipeline.KindRollingAggregate, pipeline.KindDistinct, pipeline.KindMapUsingStore:
		var supplier processor.Supplier
		key := s.Keys[0]
		switch s.Kind {
		case pipeline.KindRollingAggregate:
			supplier = processor.NewRollingAggregate(key.Fn, s.Op, s.RollingResult)
		case pipeline.KindDistinct:
			supplier = processor.NewDistinct(key.Fn)
		default:
			supplier = processor.NewStoreLookup(s.Store, key.Fn, s.Lookup)
		}
		v := dag.NewVertex(s.Name, supplier).WithParallelism(c.parallelism(s))
		single(v)
		if err := c.addVertex(s, v); err != nil {
			return err
		}
		if s.Kind == pipeline.KindMapUsingStore {
			// the lookup holds no keyed state, the partitioning only keeps a key on the same near cache
			return c.connectInputs(s, v, func(_ int, e dag.Edge) dag.Edge { return e.PartitionedBy(key.Name, partition.KeyFn(key.Fn)) })
		}
		return c.connectInputs(s, v, partitioned(s, v, true))

	case pipeline.KindHashJoin:
		v := dag.NewVertex(s.Name, processor.NewHashJoin(s.Clauses, s.JoinResult)).WithParallelism(c.parallelism(s))
		single(v)
		if err := c.addVertex(s, v); err != nil {
			return err
		}
		return c.connectInputs(s, v, func(i int, e dag.Edge) dag.Edge {
			if i == 0 {
				return e
			}
			return e.Broadcast().Distribute().WithPriority(-1)
		})

	case pipeline.KindSink:
		v := dag.NewVertex(s.Name, processor.NewSinkWriter(s.Sink)).WithParallelism(c.sinkParallelism(s))
		single(v)
		if err := c.addVertex(s, v); err != nil {
			return err
		}
		// a producer instance always writes to the same sink instance, the order of each key is kept
		return c.connectInputs(s, v, func(_ int, e dag.Edge) dag.Edge { return e.Isolated() })
	}
	return stageError(s, "unknown stage kind %v", s.Kind)
}

// forceSingle runs the non-keyed aggregation vertex as a single instance.
func (c *compilation) forceSingle(s *pipeline.Stage, v *dag.Vertex) {
	if s.Parallelism > 1 {
		c.log.Warnw("Ignoring the parallelism of a non-keyed aggregation", zap.String("stage", s.Name), zap.Int("parallelism", s.Parallelism))
	}
	v.WithParallelism(1)
}

// compileWindow splits the windowed aggregation in two vertices. The first accumulates the items of its instance by
// frame and key; the second, partitioned by key, combines the frames of all the first stage instances into windows.
func (c *compilation) compileWindow(s *pipeline.Stage) error {
	accumulate := dag.NewVertex(s.Name+"-accumulate", processor.NewFrameAccumulator(keyFns(s), s.Op, s.Window, c.latePolicy(s))).
		WithParallelism(c.parallelism(s))
	combine := dag.NewVertex(s.Name, processor.NewSlidingCombiner(s.Op, s.Window, s.WindowResult))
	if s.Keyed() {
		combine.WithParallelism(c.parallelism(s))
	} else {
		c.forceSingle(s, combine)
	}
	c.in[s], c.out[s] = accumulate, combine
	if err := c.addVertex(s, accumulate); err != nil {
		return err
	}
	if err := c.addVertex(s, combine); err != nil {
		return err
	}
	var shape func(int, dag.Edge) dag.Edge
	if s.Keyed() {
		shape = partitioned(s, accumulate, false)
	}
	if err := c.connectInputs(s, accumulate, shape); err != nil {
		return err
	}
	combine.RequireKey(0, frameKeyName)
	frameKey := func(item any) any { return item.(processor.FramePartial).Key }
	edge := dag.Between(accumulate.Name, combine.Name).PartitionedBy(frameKeyName, frameKey).Distribute()
	c.outOrdinals[accumulate]++
	if err := c.d.Connect(edge); err != nil {
		return &CompileError{Stage: s.Name, Err: err}
	}
	return nil
}
