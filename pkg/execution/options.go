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

package execution

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	dfv1 "github.com/numaproj/dataflow/pkg/apis/dataflow/v1alpha1"
	"github.com/numaproj/dataflow/pkg/snapshot"
)

type options struct {
	// job names the job in the metrics and the processor contexts
	job string
	// guarantee decides whether the inputs are blocked during the barrier alignment
	guarantee dfv1.ProcessingGuarantee
	// defaultParallelism is the parallelism of the vertices without override
	defaultParallelism int
	// bufferLength is the capacity of every edge buffer
	bufferLength int64
	// readBatchSize is the number of messages read from a buffer or a source at once
	readBatchSize int
	// watermarkEmitInterval throttles the watermark emission of the sources
	watermarkEmitInterval time.Duration
	// idleWait is how long a source waits when it has no data
	idleWait time.Duration
	clock    clock.Clock
	handler  snapshot.Handler
	// restoredID is the id of the snapshot the state was restored from, zero for a fresh start
	restoredID int64
	restored   map[snapshot.InstanceID]snapshot.InstanceState
	logger     *zap.SugaredLogger
}

func defaultOptions() *options {
	return &options{
		job:                "job",
		guarantee:          dfv1.ProcessingGuaranteeNone,
		bufferLength:       1024,
		readBatchSize:      64,
		idleWait:           5 * time.Millisecond,
		clock:              clock.New(),
		handler:            noopHandler{},
		restored:           map[snapshot.InstanceID]snapshot.InstanceState{},
		defaultParallelism: 0,
	}
}

type Option func(*options)

// WithJob sets the job name.
func WithJob(name string) Option {
	return func(o *options) {
		o.job = name
	}
}

// WithGuarantee sets the processing guarantee.
func WithGuarantee(g dfv1.ProcessingGuarantee) Option {
	return func(o *options) {
		o.guarantee = g
	}
}

// WithDefaultParallelism sets the parallelism of the vertices without override.
func WithDefaultParallelism(n int) Option {
	return func(o *options) {
		o.defaultParallelism = n
	}
}

// WithBufferLength sets the capacity of the edge buffers.
func WithBufferLength(n int64) Option {
	return func(o *options) {
		o.bufferLength = n
	}
}

// WithReadBatchSize sets the read batch size.
func WithReadBatchSize(n int) Option {
	return func(o *options) {
		o.readBatchSize = n
	}
}

// WithWatermarkEmitInterval sets the minimum interval between two watermarks of a source.
func WithWatermarkEmitInterval(d time.Duration) Option {
	return func(o *options) {
		o.watermarkEmitInterval = d
	}
}

// WithClock sets the clock of the watermark trackers.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithSnapshotHandler sets the coordinator the instances report their state to.
func WithSnapshotHandler(h snapshot.Handler) Option {
	return func(o *options) {
		o.handler = h
	}
}

// WithRestoredState restores the instances from the snapshot id.
func WithRestoredState(id int64, states map[snapshot.InstanceID]snapshot.InstanceState) Option {
	return func(o *options) {
		o.restoredID = id
		o.restored = states
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// noopHandler is used when no snapshot is taken.
type noopHandler struct{}

func (noopHandler) RequestedSnapshot() int64 { return 0 }

func (noopHandler) Ack(int64, snapshot.InstanceID, []snapshot.Entry) {}

func (noopHandler) Completed(snapshot.InstanceID, []snapshot.Entry) {}
