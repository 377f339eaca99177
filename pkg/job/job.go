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

package job

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	dfv1 "github.com/numaproj/dataflow/pkg/apis/dataflow/v1alpha1"
	"github.com/numaproj/dataflow/pkg/cluster"
	"github.com/numaproj/dataflow/pkg/dag"
	"github.com/numaproj/dataflow/pkg/execution"
	"github.com/numaproj/dataflow/pkg/isb"
	"github.com/numaproj/dataflow/pkg/metrics"
	"github.com/numaproj/dataflow/pkg/shared/logging"
	"github.com/numaproj/dataflow/pkg/snapshot"
)

// ErrMemberLost fails the execution of a job when a member leaves the cluster.
var ErrMemberLost = errors.New("member left the cluster")

// JobFailedError is the error of a job that failed for good.
type JobFailedError struct {
	Job      string
	Restarts int
	Err      error
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %q failed after %d restarts, %v", e.Job, e.Restarts, e.Err)
}

func (e *JobFailedError) Unwrap() error {
	return e.Err
}

type outcomeKind int

const (
	outcomeCompleted outcomeKind = iota
	outcomeFailed
	outcomeSuspended
	outcomeTerminated
)

type outcome struct {
	kind outcomeKind
	err  error
}

// Job is a running pipeline.
type Job struct {
	id     string
	cfg    dfv1.JobConfig
	dag    *dag.DAG
	engine *Engine
	coord  *snapshot.Coordinator
	log    *zap.SugaredLogger

	lock      sync.RWMutex
	status    dfv1.JobStatus
	restarts  int
	err       error
	execution *execution.Execution
	// setLagReaders exports the pending messages of the edge buffers of each execution
	setLagReaders func([]isb.LagReader)

	cancelOnce sync.Once
	cancelCh   chan struct{}
	done       chan struct{}
}

var _ metrics.HealthChecker = (*Job)(nil)

func newJob(e *Engine, d *dag.DAG, cfg dfv1.JobConfig) *Job {
	id := uuid.New().String()
	if cfg.Name == "" {
		cfg.Name = id
	}
	log := e.log.With("job", cfg.Name, "jobID", id)
	return &Job{
		id:     id,
		cfg:    cfg,
		dag:    d,
		engine: e,
		coord: snapshot.NewCoordinator(cfg, e.members, e.store, e.manifests,
			snapshot.WithManifestKey(id), snapshot.WithCoordinatorClock(e.clock), snapshot.WithCoordinatorLogger(log)),
		log:      log,
		status:   dfv1.JobStatusNotRunning,
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// ID returns the unique id of the job.
func (j *Job) ID() string {
	return j.id
}

// Name returns the name of the job, its id if the config has no name.
func (j *Job) Name() string {
	return j.cfg.Name
}

// Config returns the config of the job.
func (j *Job) Config() dfv1.JobConfig {
	return j.cfg
}

// Status returns the status of the job. A running job with a snapshot in flight is SNAPSHOTTING.
func (j *Job) Status() dfv1.JobStatus {
	j.lock.RLock()
	s := j.status
	j.lock.RUnlock()
	if s == dfv1.JobStatusRunning && j.coord.InFlight() {
		return dfv1.JobStatusSnapshotting
	}
	return s
}

// Restarts returns the number of restarts so far.
func (j *Job) Restarts() int {
	j.lock.RLock()
	defer j.lock.RUnlock()
	return j.restarts
}

// Coordinator returns the snapshot coordinator of the job.
func (j *Job) Coordinator() *snapshot.Coordinator {
	return j.coord
}

// Execution returns the current execution, nil when none is running.
func (j *Job) Execution() *execution.Execution {
	j.lock.RLock()
	defer j.lock.RUnlock()
	return j.execution
}

// Cancel stops the job. Under a guarantee taking snapshots a final snapshot is taken first.
func (j *Job) Cancel() {
	j.cancelOnce.Do(func() {
		close(j.cancelCh)
	})
}

// Join waits for the job to end. It returns a JobFailedError if the job failed.
func (j *Job) Join(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-j.done:
	}
	j.lock.RLock()
	defer j.lock.RUnlock()
	return j.err
}

// Done is closed when the job ended.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// IsHealthy returns an error when the job failed or is suspended.
func (j *Job) IsHealthy(context.Context) error {
	switch s := j.Status(); s {
	case dfv1.JobStatusFailed, dfv1.JobStatusSuspended:
		return fmt.Errorf("job %q is %s", j.Name(), s)
	default:
		return nil
	}
}

func (j *Job) setStatus(s dfv1.JobStatus) {
	j.lock.Lock()
	prev := j.status
	j.status = s
	j.lock.Unlock()
	if prev == s {
		return
	}
	metrics.JobStatus.WithLabelValues(j.Name(), string(prev)).Set(0)
	metrics.JobStatus.WithLabelValues(j.Name(), string(s)).Set(1)
	j.log.Infow("Job status changed", zap.String("from", string(prev)), zap.String("to", string(s)))
}

func (j *Job) finish(s dfv1.JobStatus, err error) {
	j.lock.Lock()
	j.err = err
	j.execution = nil
	j.lock.Unlock()
	j.setStatus(s)
}

func (j *Job) run(ctx context.Context) {
	defer close(j.done)
	ctx = logging.WithLogger(ctx, j.log)
	j.setStatus(dfv1.JobStatusStarting)

	if j.engine.metricsPort > 0 {
		ms := metrics.NewMetricsServer(j.Name(), metrics.NewMetricsOptions(ctx, j.engine.metricsPort, []metrics.HealthChecker{j})...)
		shutdown, err := ms.Start(ctx)
		if err != nil {
			j.finish(dfv1.JobStatusFailed, &JobFailedError{Job: j.Name(), Err: err})
			return
		}
		defer func() { _ = shutdown(context.Background()) }()
		j.lock.Lock()
		j.setLagReaders = ms.SetLagReaders
		j.lock.Unlock()
	}

	backoff := j.engine.backoff
	guarantee := j.cfg.GetProcessingGuarantee()
	for attempt := 0; ; attempt++ {
		if j.cfg.SplitBrainProtectionEnabled && !j.engine.members.HasQuorum() {
			j.setStatus(dfv1.JobStatusSuspended)
			if !j.awaitQuorum(ctx) {
				j.finish(dfv1.JobStatusTerminated, nil)
				return
			}
		}
		if attempt > 0 {
			j.setStatus(dfv1.JobStatusRestarting)
		}
		exec, err := j.newExecution(ctx)
		var out outcome
		if err != nil {
			out = outcome{kind: outcomeFailed, err: err}
		} else {
			j.setStatus(dfv1.JobStatusRunning)
			out = j.runExecution(ctx, exec)
		}

		switch out.kind {
		case outcomeCompleted:
			// the sinks commit what they prepared after the last snapshot
			if err := exec.CommitSnapshot(ctx, math.MaxInt64); err != nil {
				j.finish(dfv1.JobStatusFailed, &JobFailedError{Job: j.Name(), Restarts: j.Restarts(), Err: err})
				return
			}
			if err := j.coord.Purge(ctx); err != nil {
				j.log.Warnw("Failed to delete the snapshots of the completed job", zap.Error(err))
			}
			j.finish(dfv1.JobStatusCompleted, nil)
			return
		case outcomeTerminated:
			j.finish(dfv1.JobStatusTerminated, nil)
			return
		case outcomeSuspended:
			j.log.Warn("Lost the quorum of the cluster, suspending the job")
			metrics.JobRestartsCount.WithLabelValues(j.Name(), "quorum-lost").Inc()
			j.setStatus(dfv1.JobStatusSuspended)
			continue
		}

		j.log.Errorw("Execution failed", zap.Error(out.err))
		reason := "failure"
		if errors.Is(out.err, ErrMemberLost) {
			reason = "member-lost"
		}
		restarts := j.Restarts()
		if !guarantee.SnapshotsEnabled() || restarts >= j.cfg.GetMaxRestarts() {
			j.finish(dfv1.JobStatusFailed, &JobFailedError{Job: j.Name(), Restarts: restarts, Err: out.err})
			return
		}
		j.lock.Lock()
		j.restarts++
		j.lock.Unlock()
		metrics.JobRestartsCount.WithLabelValues(j.Name(), reason).Inc()
		j.setStatus(dfv1.JobStatusRestarting)
		delay := backoff.Step()
		select {
		case <-ctx.Done():
			j.finish(dfv1.JobStatusTerminated, nil)
			return
		case <-j.cancelCh:
			j.finish(dfv1.JobStatusTerminated, nil)
			return
		case <-j.engine.clock.After(delay):
		}
	}
}

func (j *Job) onExecution(e *execution.Execution) {
	j.lock.Lock()
	j.execution = e
	set := j.setLagReaders
	j.lock.Unlock()
	if set == nil {
		return
	}
	if e == nil {
		set(nil)
		return
	}
	set(e.LagReaders())
}

// newExecution restores the latest committed snapshot, if any, into a new execution.
func (j *Job) newExecution(ctx context.Context) (*execution.Execution, error) {
	guarantee := j.cfg.GetProcessingGuarantee()
	var restoredID int64
	var states map[snapshot.InstanceID]snapshot.InstanceState
	if guarantee.SnapshotsEnabled() {
		var err error
		restoredID, states, err = j.coord.Restore(ctx, j.engine.parallelism(j.dag))
		if err != nil {
			return nil, err
		}
	}
	ec := j.engine.exec
	exec, err := execution.NewExecution(j.dag,
		execution.WithJob(j.Name()),
		execution.WithGuarantee(guarantee),
		execution.WithDefaultParallelism(ec.DefaultParallelism),
		execution.WithBufferLength(ec.BufferLength),
		execution.WithReadBatchSize(int(ec.ReadBatchSize)),
		execution.WithWatermarkEmitInterval(ec.WatermarkEmitInterval),
		execution.WithClock(j.engine.clock),
		execution.WithSnapshotHandler(j.coord),
		execution.WithRestoredState(restoredID, states),
		execution.WithLogger(j.log),
	)
	if err != nil {
		return nil, err
	}
	j.coord.Begin(exec.Instances(), restoredID)
	j.coord.OnCommit(exec.CommitSnapshot)
	j.onExecution(exec)
	return exec, nil
}

// runExecution runs the execution and the snapshot coordinator until the execution ends, fails, a member is lost
// or the job is cancelled.
func (j *Job) runExecution(ctx context.Context, exec *execution.Execution) outcome {
	execCtx, cancelExec := context.WithCancel(ctx)
	defer cancelExec()
	coordCtx, cancelCoord := context.WithCancel(ctx)
	defer cancelCoord()
	execDone := make(chan error, 1)
	go func() { execDone <- exec.Run(execCtx) }()
	coordDone := make(chan error, 1)
	go func() { coordDone <- j.coord.Run(coordCtx) }()
	events, unsubscribe := j.engine.members.Subscribe()
	defer unsubscribe()

	stopExec := func() error {
		cancelExec()
		return <-execDone
	}
	stopCoord := func() {
		cancelCoord()
		<-coordDone
	}

	cancelCh := j.cancelCh
	var snapDone chan error
	var cancelSnap context.CancelFunc = func() {}
	defer func() { cancelSnap() }()
	for {
		select {
		case err := <-execDone:
			cancelSnap()
			if snapDone != nil {
				<-snapDone
			}
			stopCoord()
			if err == nil {
				return outcome{kind: outcomeCompleted}
			}
			if ctx.Err() != nil {
				return outcome{kind: outcomeTerminated}
			}
			return outcome{kind: outcomeFailed, err: err}
		case err := <-coordDone:
			cancelSnap()
			if snapDone != nil {
				<-snapDone
			}
			_ = stopExec()
			if ctx.Err() != nil {
				return outcome{kind: outcomeTerminated}
			}
			return outcome{kind: outcomeFailed, err: err}
		case ev := <-events:
			suspend := j.cfg.SplitBrainProtectionEnabled && !j.engine.members.HasQuorum()
			if !suspend && ev.Type != cluster.MemberLost {
				continue
			}
			cancelSnap()
			if snapDone != nil {
				<-snapDone
			}
			_ = stopExec()
			stopCoord()
			if suspend {
				return outcome{kind: outcomeSuspended}
			}
			// the instances of the lost member are gone, the execution restarts from the last snapshot
			return outcome{kind: outcomeFailed, err: fmt.Errorf("%w: %s", ErrMemberLost, ev.Member)}
		case <-cancelCh:
			cancelCh = nil
			if !j.cfg.GetProcessingGuarantee().SnapshotsEnabled() {
				_ = stopExec()
				stopCoord()
				return outcome{kind: outcomeTerminated}
			}
			j.log.Info("Taking the final snapshot of the cancelled job")
			var snapCtx context.Context
			snapCtx, cancelSnap = context.WithCancel(ctx)
			snapDone = make(chan error, 1)
			go func() {
				_, err := j.coord.Snapshot(snapCtx)
				snapDone <- err
			}()
		case err := <-snapDone:
			snapDone = nil
			if err != nil && !errors.Is(err, context.Canceled) {
				j.log.Warnw("Failed to take the final snapshot", zap.Error(err))
			}
			_ = stopExec()
			stopCoord()
			return outcome{kind: outcomeTerminated}
		case <-ctx.Done():
			cancelSnap()
			if snapDone != nil {
				<-snapDone
			}
			_ = stopExec()
			stopCoord()
			return outcome{kind: outcomeTerminated}
		}
	}
}

// awaitQuorum blocks until the cluster has a quorum again. It returns false if the job is cancelled first.
func (j *Job) awaitQuorum(ctx context.Context) bool {
	events, unsubscribe := j.engine.members.Subscribe()
	defer unsubscribe()
	for {
		if j.engine.members.HasQuorum() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-j.cancelCh:
			return false
		case <-events:
		}
	}
}
