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
Package job runs pipelines as jobs. A job compiles its pipeline once and runs it in executions: a failed execution is
replaced by a new one restored from the latest committed snapshot, until the restart budget is exhausted.
*/
package job

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	dfv1 "github.com/numaproj/dataflow/pkg/apis/dataflow/v1alpha1"
	"github.com/numaproj/dataflow/pkg/cluster"
	"github.com/numaproj/dataflow/pkg/compiler"
	"github.com/numaproj/dataflow/pkg/config"
	"github.com/numaproj/dataflow/pkg/dag"
	"github.com/numaproj/dataflow/pkg/pipeline"
	"github.com/numaproj/dataflow/pkg/shared/kvs"
	"github.com/numaproj/dataflow/pkg/shared/logging"
	"github.com/numaproj/dataflow/pkg/shared/util"
	"github.com/numaproj/dataflow/pkg/snapshot"
)

// Engine runs jobs on the local member. It holds what the jobs share: the membership, the snapshot storage and the
// execution defaults.
type Engine struct {
	members   cluster.Membership
	store     *snapshot.MemberStore
	manifests *snapshot.ManifestStore
	exec      config.ExecutionConfig
	clock     clock.Clock
	backoff   wait.Backoff
	// metricsPort is the port of the metrics server of each job, zero disables it
	metricsPort int
	log         *zap.SugaredLogger

	lock sync.Mutex
	jobs map[string]*Job
}

type EngineOption func(*Engine)

// WithExecutionConfig sets the execution defaults of the jobs.
func WithExecutionConfig(c config.ExecutionConfig) EngineOption {
	return func(e *Engine) {
		e.exec = c
	}
}

// WithEngineClock sets the clock used by the snapshot coordinators and the watermark emission.
func WithEngineClock(c clock.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithRestartBackoff sets the backoff between two executions of a failed job.
func WithRestartBackoff(b wait.Backoff) EngineOption {
	return func(e *Engine) {
		e.backoff = b
	}
}

// WithMetricsPort starts a metrics server for every job on the port.
func WithMetricsPort(port int) EngineOption {
	return func(e *Engine) {
		e.metricsPort = port
	}
}

// WithEngineLogger sets the logger.
func WithEngineLogger(l *zap.SugaredLogger) EngineOption {
	return func(e *Engine) {
		e.log = l
	}
}

// NewEngine returns an engine storing the snapshot manifests in kv.
func NewEngine(members cluster.Membership, kv kvs.KVStorer, opts ...EngineOption) *Engine {
	e := &Engine{
		members:   members,
		store:     snapshot.NewMemberStore(),
		manifests: snapshot.NewManifestStore(kv),
		exec: config.ExecutionConfig{
			DefaultParallelism:    2,
			BufferLength:          dfv1.DefaultBufferLength,
			ReadBatchSize:         dfv1.DefaultReadBatchSize,
			WatermarkEmitInterval: dfv1.DefaultWatermarkEmitInterval,
		},
		clock:   clock.New(),
		backoff: util.DefaultRetryBackoff,
		jobs:    make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logging.NewLogger()
	}
	e.log = e.log.With("member", members.Local())
	return e
}

// EngineContext returns what the compiler needs to know about the engine.
func (e *Engine) EngineContext() compiler.EngineContext {
	return compiler.EngineContext{DefaultParallelism: e.exec.DefaultParallelism}
}

// Store returns the member store holding the snapshot states.
func (e *Engine) Store() *snapshot.MemberStore {
	return e.store
}

// Submit compiles the pipeline and starts it as a job.
func (e *Engine) Submit(ctx context.Context, p *pipeline.Pipeline, cfg dfv1.JobConfig) (*Job, error) {
	d, err := compiler.Compile(ctx, e.EngineContext(), p)
	if err != nil {
		return nil, err
	}
	return e.SubmitDAG(ctx, d, cfg)
}

// SubmitDAG starts the DAG as a job. The job runs until it completes, fails or is cancelled, or until ctx is done.
func (e *Engine) SubmitDAG(ctx context.Context, d *dag.DAG, cfg dfv1.JobConfig) (*Job, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job config, %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	j := newJob(e, d, cfg)
	e.lock.Lock()
	if prev, ok := e.jobs[j.Name()]; ok && !prev.Status().IsTerminal() {
		e.lock.Unlock()
		return nil, fmt.Errorf("job %q is already running", j.Name())
	}
	e.jobs[j.Name()] = j
	e.lock.Unlock()
	go j.run(ctx)
	return j, nil
}

// Job returns the latest job submitted with the name.
func (e *Engine) Job(name string) (*Job, bool) {
	e.lock.Lock()
	defer e.lock.Unlock()
	j, ok := e.jobs[name]
	return j, ok
}

// Jobs returns the latest job of every name, sorted by name.
func (e *Engine) Jobs() []*Job {
	e.lock.Lock()
	defer e.lock.Unlock()
	out := make([]*Job, 0, len(e.jobs))
	for _, j := range e.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name() < out[k].Name() })
	return out
}

// Shutdown cancels every running job and waits for them.
func (e *Engine) Shutdown(ctx context.Context) error {
	jobs := e.Jobs()
	for _, j := range jobs {
		j.Cancel()
	}
	for _, j := range jobs {
		select {
		case <-j.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (e *Engine) parallelism(d *dag.DAG) func(string) int {
	return func(name string) int {
		v, ok := d.Vertex(name)
		if !ok {
			return 0
		}
		if v.LocalParallelism > 0 {
			return v.LocalParallelism
		}
		return e.exec.DefaultParallelism
	}
}
