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
Package execution runs a DAG in process. Every vertex instance is a tasklet goroutine; the edges are bounded in-memory
buffers, one per (edge, producer instance, consumer instance). Watermarks, snapshot barriers and end of stream flow
in band with the data.
*/
package execution

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/numaproj/dataflow/pkg/dag"
	"github.com/numaproj/dataflow/pkg/isb"
	"github.com/numaproj/dataflow/pkg/isb/stores/simplebuffer"
	"github.com/numaproj/dataflow/pkg/partition"
	"github.com/numaproj/dataflow/pkg/processor"
	"github.com/numaproj/dataflow/pkg/shared/logging"
	"github.com/numaproj/dataflow/pkg/snapshot"
)

// tasklet runs one vertex instance.
type tasklet interface {
	instance() snapshot.InstanceID
	run(ctx context.Context) error
}

// Execution is one run of a DAG. It can be run once; a restart creates a new Execution restored from a snapshot.
type Execution struct {
	dag         *dag.DAG
	opts        *options
	log         *zap.SugaredLogger
	parallelism map[string]int
	// buffers holds the buffers of every edge by producer then consumer instance.
	buffers   map[string][][]*simplebuffer.InMemoryBuffer
	notifiers map[string][]chan struct{}
	tasklets  []tasklet

	lock          sync.Mutex
	snapshotAware []processor.SnapshotAware
}

func edgeID(e dag.Edge) string {
	return fmt.Sprintf("%s:%d->%s:%d", e.From, e.FromOrdinal, e.To, e.ToOrdinal)
}

// NewExecution validates the DAG and creates its buffers and tasklets.
func NewExecution(d *dag.DAG, opts ...Option) (*Execution, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.defaultParallelism <= 0 {
		o.defaultParallelism = runtime.NumCPU()
	}
	if o.bufferLength <= 0 || o.readBatchSize <= 0 {
		return nil, fmt.Errorf("buffer length and read batch size must be positive")
	}
	if o.logger == nil {
		o.logger = logging.NewLogger()
	}
	e := &Execution{
		dag:         d,
		opts:        o,
		log:         o.logger.With("job", o.job),
		parallelism: make(map[string]int),
		buffers:     make(map[string][][]*simplebuffer.InMemoryBuffer),
		notifiers:   make(map[string][]chan struct{}),
	}
	for _, v := range d.Vertices() {
		n := v.LocalParallelism
		if n <= 0 {
			n = o.defaultParallelism
		}
		e.parallelism[v.Name] = n
		chans := make([]chan struct{}, n)
		for i := range chans {
			chans[i] = make(chan struct{}, 1)
		}
		e.notifiers[v.Name] = chans
	}
	for _, edge := range d.Edges() {
		producers, consumers := e.parallelism[edge.From], e.parallelism[edge.To]
		bufs := make([][]*simplebuffer.InMemoryBuffer, producers)
		for p := range bufs {
			bufs[p] = make([]*simplebuffer.InMemoryBuffer, consumers)
			for c := range bufs[p] {
				name := fmt.Sprintf("%s-%s-%d-%s-%d", o.job, edge.From, p, edge.To, c)
				bufs[p][c] = simplebuffer.NewInMemoryBuffer(name, o.bufferLength, int32(c), simplebuffer.WithNotifier(e.notifiers[edge.To][c]))
			}
		}
		e.buffers[edgeID(edge)] = bufs
	}
	for _, v := range d.Vertices() {
		for i := 0; i < e.parallelism[v.Name]; i++ {
			t, err := e.newTasklet(v, i)
			if err != nil {
				return nil, err
			}
			e.tasklets = append(e.tasklets, t)
		}
	}
	return e, nil
}

func (e *Execution) newOutbox(v *dag.Vertex, index int) (*outbox, error) {
	var edges []outEdge
	for _, edge := range e.dag.OutboundEdges(v.Name) {
		router, err := partition.NewRouter(edge.Routing, edge.Key.Fn, index, e.parallelism[edge.To])
		if err != nil {
			return nil, fmt.Errorf("edge %s: %w", edge, err)
		}
		edges = append(edges, outEdge{router: router, buffers: e.buffers[edgeID(edge)][index]})
	}
	return newOutbox(e.opts.job, v.Name, index, edges), nil
}

func (e *Execution) newTasklet(v *dag.Vertex, index int) (tasklet, error) {
	id := snapshot.InstanceID{Vertex: v.Name, Index: index}
	out, err := e.newOutbox(v, index)
	if err != nil {
		return nil, err
	}
	var restored *snapshot.InstanceState
	if st, ok := e.opts.restored[id]; ok {
		restored = &st
	}
	log := e.log.With("vertex", v.Name, "instance", index)
	if v.IsSource() {
		return &sourceTasklet{
			id:          id,
			spec:        v.Source,
			parallelism: e.parallelism[v.Name],
			out:         out,
			opts:        e.opts,
			restored:    restored,
			log:         log,
		}, nil
	}
	proc := v.Supplier()
	if aware, ok := proc.(processor.SnapshotAware); ok {
		e.snapshotAware = append(e.snapshotAware, aware)
	}
	t := &processorTasklet{
		id:       id,
		proc:     proc,
		out:      out,
		opts:     e.opts,
		restored: restored,
		notifier: e.notifiers[v.Name][index],
		pctx: processor.Context{
			Job:         e.opts.job,
			Vertex:      v.Name,
			Index:       index,
			Parallelism: e.parallelism[v.Name],
			Guarantee:   string(e.opts.guarantee),
			Logger:      log,
		},
		log: log,
	}
	for _, edge := range e.dag.InboundEdges(v.Name) {
		for _, bufs := range e.buffers[edgeID(edge)] {
			t.inputs = append(t.inputs, &input{ordinal: edge.ToOrdinal, priority: edge.Priority, buf: bufs[index]})
		}
	}
	return t, nil
}

// Parallelism returns the number of instances of the vertex.
func (e *Execution) Parallelism(vertex string) int {
	return e.parallelism[vertex]
}

// Instances returns every vertex instance, sorted.
func (e *Execution) Instances() []snapshot.InstanceID {
	ids := make([]snapshot.InstanceID, 0, len(e.tasklets))
	for _, t := range e.tasklets {
		ids = append(ids, t.instance())
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Vertex != ids[j].Vertex {
			return ids[i].Vertex < ids[j].Vertex
		}
		return ids[i].Index < ids[j].Index
	})
	return ids
}

// LagReaders returns the edge buffers, for the pending messages metric.
func (e *Execution) LagReaders() []isb.LagReader {
	var readers []isb.LagReader
	for _, edge := range e.dag.Edges() {
		for _, bufs := range e.buffers[edgeID(edge)] {
			for _, b := range bufs {
				readers = append(readers, b)
			}
		}
	}
	return readers
}

// Run runs every tasklet until they all complete or one fails. The first failure cancels the others.
func (e *Execution) Run(ctx context.Context) error {
	e.log.Infow("Starting execution", zap.Int("tasklets", len(e.tasklets)), zap.Int64("restoredSnapshot", e.opts.restoredID))
	g, gCtx := errgroup.WithContext(logging.WithLogger(ctx, e.log))
	for _, t := range e.tasklets {
		t := t
		g.Go(func() error {
			return t.run(gCtx)
		})
	}
	err := g.Wait()
	if err != nil {
		e.log.Warnw("Execution stopped", zap.Error(err))
		return err
	}
	e.log.Info("Execution completed")
	return nil
}

// CommitSnapshot notifies the processors taking part in the commit, i.e. the transactional sinks, that the snapshot
// is committed.
func (e *Execution) CommitSnapshot(ctx context.Context, id int64) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	var err error
	for _, aware := range e.snapshotAware {
		err = multierr.Append(err, aware.OnSnapshotCommitted(ctx, id))
	}
	return err
}
