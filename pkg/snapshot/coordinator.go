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
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	dfv1 "github.com/numaproj/dataflow/pkg/apis/dataflow/v1alpha1"
	"github.com/numaproj/dataflow/pkg/cluster"
	"github.com/numaproj/dataflow/pkg/metrics"
	"github.com/numaproj/dataflow/pkg/shared/logging"
)

// CommitFunc is called after a snapshot is committed.
type CommitFunc func(ctx context.Context, id int64) error

// CommitError is returned by Run when a snapshot was committed but a commit callback failed.
type CommitError struct {
	ID  int64
	Err error
}

func (e CommitError) Error() string {
	return fmt.Sprintf("snapshot %d committed but its commit callbacks failed, %v", e.ID, e.Err)
}

func (e CommitError) Unwrap() error {
	return e.Err
}

type pendingSnapshot struct {
	id      int64
	started time.Time
	acked   map[InstanceID][]Entry
}

// Coordinator takes the snapshots of a job. Every interval it requests a snapshot from the sources, which inject a
// barrier; once every instance acked the barrier or completed, the states are copied to the replica members and the
// manifest is saved, which commits the snapshot. One snapshot is in flight at a time.
type Coordinator struct {
	job string
	// key prefixes the manifests of the job, the job name unless set
	key       string
	guarantee dfv1.ProcessingGuarantee
	interval  time.Duration
	backup    int
	clock     clock.Clock
	members   cluster.Membership
	store     *MemberStore
	manifests *ManifestStore
	log       *zap.SugaredLogger

	requested *atomic.Int64
	committed *atomic.Int64
	ready     chan struct{}

	lock       sync.Mutex
	instances  []InstanceID
	lastIssued int64
	pending    *pendingSnapshot
	completed  map[InstanceID][]Entry
	onCommit   []CommitFunc
	waiters    []waiter
}

type waiter struct {
	id int64
	ch chan error
}

var _ Handler = (*Coordinator)(nil)

type CoordinatorOption func(*Coordinator)

// WithCoordinatorClock sets the clock of the snapshot interval and durations.
func WithCoordinatorClock(c clock.Clock) CoordinatorOption {
	return func(co *Coordinator) {
		co.clock = c
	}
}

// WithManifestKey sets the key the manifests of the job are stored under, so that jobs with the same name do not
// share snapshots.
func WithManifestKey(key string) CoordinatorOption {
	return func(co *Coordinator) {
		co.key = key
	}
}

// WithCoordinatorLogger sets the logger.
func WithCoordinatorLogger(l *zap.SugaredLogger) CoordinatorOption {
	return func(co *Coordinator) {
		co.log = l
	}
}

// NewCoordinator returns the coordinator of a job.
func NewCoordinator(cfg dfv1.JobConfig, members cluster.Membership, store *MemberStore, manifests *ManifestStore, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		job:       cfg.Name,
		key:       cfg.Name,
		guarantee: cfg.GetProcessingGuarantee(),
		interval:  cfg.GetSnapshotInterval(),
		backup:    cfg.GetBackupCount(),
		clock:     clock.New(),
		members:   members,
		store:     store,
		manifests: manifests,
		requested: atomic.NewInt64(0),
		committed: atomic.NewInt64(0),
		ready:     make(chan struct{}, 1),
		completed: make(map[InstanceID][]Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logging.NewLogger()
	}
	c.log = c.log.With("job", c.job)
	return c
}

// OnCommit registers a callback called after every commit, in the Run goroutine.
func (c *Coordinator) OnCommit(fn CommitFunc) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.onCommit = append(c.onCommit, fn)
}

// Begin prepares the coordinator for a new execution of the job made of the instances, restored from the snapshot
// restoredID. A snapshot in flight for a previous execution is abandoned.
func (c *Coordinator) Begin(instances []InstanceID, restoredID int64) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.pending != nil {
		c.log.Infow("Abandoning snapshot", zap.Int64("snapshotID", c.pending.id))
		metrics.SnapshotsCount.WithLabelValues(c.job, "abandoned").Inc()
		c.notify(c.pending.id, fmt.Errorf("snapshot %d abandoned", c.pending.id))
		c.pending = nil
	}
	c.instances = append([]InstanceID(nil), instances...)
	c.completed = make(map[InstanceID][]Entry)
	c.onCommit = nil
	c.requested.Store(restoredID)
	if restoredID > c.lastIssued {
		c.lastIssued = restoredID
	}
	select {
	case <-c.ready:
	default:
	}
}

// RequestedSnapshot returns the id of the latest requested snapshot.
func (c *Coordinator) RequestedSnapshot() int64 {
	return c.requested.Load()
}

// Committed returns the id of the latest committed snapshot, zero if none.
func (c *Coordinator) Committed() int64 {
	return c.committed.Load()
}

// Request starts a new snapshot and returns its id. If a snapshot is already in flight, its id is returned.
func (c *Coordinator) Request() (int64, error) {
	if !c.guarantee.SnapshotsEnabled() {
		return 0, fmt.Errorf("job %q takes no snapshot under processing guarantee %s", c.job, c.guarantee)
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.request(), nil
}

func (c *Coordinator) request() int64 {
	if c.pending != nil {
		return c.pending.id
	}
	c.lastIssued++
	c.pending = &pendingSnapshot{id: c.lastIssued, started: c.clock.Now(), acked: make(map[InstanceID][]Entry)}
	c.requested.Store(c.lastIssued)
	c.log.Debugw("Requested snapshot", zap.Int64("snapshotID", c.lastIssued))
	c.checkReady()
	return c.lastIssued
}

// Snapshot requests a snapshot and waits until it is committed. Run must be running.
func (c *Coordinator) Snapshot(ctx context.Context) (int64, error) {
	id, err := c.Request()
	if err != nil {
		return 0, err
	}
	ch := make(chan error, 1)
	c.lock.Lock()
	if c.committed.Load() >= id {
		c.lock.Unlock()
		return id, nil
	}
	c.waiters = append(c.waiters, waiter{id: id, ch: ch})
	c.lock.Unlock()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case err := <-ch:
		return id, err
	}
}

// Ack records the state of an instance for the snapshot. Acks of a snapshot that is not in flight are ignored.
func (c *Coordinator) Ack(id int64, instance InstanceID, entries []Entry) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.pending == nil || c.pending.id != id {
		c.log.Debugw("Ignoring ack", zap.Int64("snapshotID", id), zap.String("instance", instance.String()))
		return
	}
	c.pending.acked[instance] = entries
	c.checkReady()
}

// Completed records the final state of an instance. It is used for every later snapshot the instance did not ack.
func (c *Coordinator) Completed(instance InstanceID, entries []Entry) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.completed[instance] = entries
	c.checkReady()
}

// InFlight returns true while a snapshot is requested and not committed yet.
func (c *Coordinator) InFlight() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.pending != nil
}

// Purge deletes every snapshot of the job.
func (c *Coordinator) Purge(ctx context.Context) error {
	ids, err := c.manifests.IDs(ctx, c.key)
	if err != nil {
		return err
	}
	for _, id := range ids {
		c.store.Delete(id)
		if err := c.manifests.Delete(ctx, c.key, id); err != nil {
			return err
		}
	}
	return c.manifests.DeleteLatest(ctx, c.key)
}

// AllCompleted returns true if every instance completed.
func (c *Coordinator) AllCompleted() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.instances) > 0 && len(c.completed) >= len(c.instances)
}

func (c *Coordinator) checkReady() {
	if c.pending == nil || len(c.instances) == 0 {
		return
	}
	for _, id := range c.instances {
		if _, ok := c.pending.acked[id]; ok {
			continue
		}
		if _, ok := c.completed[id]; ok {
			continue
		}
		return
	}
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// Run requests a snapshot every interval and commits the snapshots as they become ready, until the context is done.
// It returns a CommitError if a commit callback fails; a snapshot that can not be committed is dropped.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.guarantee.SnapshotsEnabled() {
		<-ctx.Done()
		return nil
	}
	ticker := c.clock.Ticker(c.interval)
	defer ticker.Stop()
	c.log.Infow("Starting snapshot coordinator", zap.Duration("interval", c.interval), zap.Int("backupCount", c.backup))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.lock.Lock()
			if c.pending == nil && len(c.instances) > 0 && len(c.completed) < len(c.instances) {
				c.request()
			}
			c.lock.Unlock()
		case <-c.ready:
			if err := c.commit(ctx); err != nil {
				return err
			}
		}
	}
}

func (c *Coordinator) commit(ctx context.Context) error {
	c.lock.Lock()
	p := c.pending
	if p == nil {
		c.lock.Unlock()
		return nil
	}
	states := make(map[InstanceID]InstanceState, len(c.instances))
	for _, id := range c.instances {
		// an ack is the state at the barrier, it wins over a completion record
		if entries, ok := p.acked[id]; ok {
			states[id] = InstanceState{Entries: entries}
		} else {
			states[id] = InstanceState{Entries: c.completed[id], Completed: true}
		}
	}
	callbacks := append([]CommitFunc(nil), c.onCommit...)
	c.lock.Unlock()

	manifest, err := c.persist(ctx, p.id, states)
	c.lock.Lock()
	if c.pending == p {
		c.pending = nil
	}
	if err != nil {
		c.notify(p.id, err)
		c.lock.Unlock()
		c.log.Errorw("Failed to commit snapshot", zap.Int64("snapshotID", p.id), zap.Error(err))
		metrics.SnapshotsCount.WithLabelValues(c.job, "failed").Inc()
		return nil
	}
	c.committed.Store(p.id)
	c.lock.Unlock()

	metrics.SnapshotsCount.WithLabelValues(c.job, "committed").Inc()
	metrics.SnapshotDuration.WithLabelValues(c.job).Observe(c.clock.Since(p.started).Seconds())
	metrics.SnapshotEntries.WithLabelValues(c.job).Set(float64(manifest.Entries))
	c.log.Infow("Committed snapshot", zap.Int64("snapshotID", p.id), zap.Strings("replicas", manifest.Replicas),
		zap.Int("entries", manifest.Entries), zap.Int("completed", manifest.Completed))

	var cbErr error
	for _, fn := range callbacks {
		if err := fn(ctx, p.id); err != nil {
			cbErr = err
			break
		}
	}
	c.gc(ctx, p.id)
	c.lock.Lock()
	c.notify(p.id, cbErr)
	c.lock.Unlock()
	if cbErr != nil {
		return CommitError{ID: p.id, Err: cbErr}
	}
	return nil
}

func (c *Coordinator) persist(ctx context.Context, id int64, states map[InstanceID]InstanceState) (*Manifest, error) {
	replicas := SelectReplicas(c.members.Reachable(), c.members.Local(), c.backup)
	if len(replicas) == 0 {
		return nil, fmt.Errorf("no reachable member to store snapshot %d", id)
	}
	m := &Manifest{
		Job:         c.key,
		ID:          id,
		CommittedAt: c.clock.Now(),
		Replicas:    replicas,
		Instances:   len(states),
		Sources:     make(map[string]SourcePosition),
	}
	for inst, st := range states {
		m.Entries += len(st.Entries)
		if st.Completed {
			m.Completed++
		}
		for _, e := range st.Entries {
			if pos, ok := e.Value.(SourcePosition); ok {
				m.Sources[inst.String()] = pos
			}
		}
	}
	c.store.Put(id, replicas, states)
	if err := c.manifests.Save(ctx, m); err != nil {
		c.store.Delete(id)
		return nil, err
	}
	return m, nil
}

// gc deletes the snapshots superseded by the committed one.
func (c *Coordinator) gc(ctx context.Context, committed int64) {
	ids, err := c.manifests.IDs(ctx, c.key)
	if err != nil {
		c.log.Warnw("Failed to list the snapshots to delete", zap.Error(err))
		return
	}
	for _, id := range ids {
		if id >= committed {
			continue
		}
		c.store.Delete(id)
		if err := c.manifests.Delete(ctx, c.key, id); err != nil {
			c.log.Warnw("Failed to delete snapshot", zap.Int64("snapshotID", id), zap.Error(err))
		}
	}
}

// notify must be called with the lock held.
func (c *Coordinator) notify(id int64, err error) {
	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if w.id <= id {
			w.ch <- err
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
}

// Restore reads the latest committed snapshot of the job and assigns its states to the instances of an execution with
// the given parallelism. It returns a zero id and no state if the job never committed a snapshot.
func (c *Coordinator) Restore(ctx context.Context, parallelism func(vertex string) int) (int64, map[InstanceID]InstanceState, error) {
	m, err := c.manifests.Latest(ctx, c.key)
	if err != nil {
		return 0, nil, err
	}
	if m == nil {
		return 0, nil, nil
	}
	states, replica, ok := c.store.Get(m.ID, c.members.Reachable())
	if !ok {
		return 0, nil, fmt.Errorf("snapshot %d of job %q has no reachable replica among %v", m.ID, c.job, m.Replicas)
	}
	c.log.Infow("Restoring snapshot", zap.Int64("snapshotID", m.ID), zap.String("replica", replica))
	c.lock.Lock()
	if m.ID > c.lastIssued {
		c.lastIssued = m.ID
	}
	c.lock.Unlock()
	c.committed.Store(m.ID)
	return m.ID, Repartition(states, parallelism), nil
}
