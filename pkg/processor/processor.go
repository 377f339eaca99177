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
Package processor holds the processing routines of the vertices. A vertex instance owns one processor; the tasklet
running the instance calls it from a single goroutine, so processors need no locking unless stated.
*/
package processor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/numaproj/dataflow/pkg/snapshot"
	"github.com/numaproj/dataflow/pkg/watermark"
)

// Item is an item read from an input, with its event time.
type Item struct {
	Payload   any
	EventTime time.Time
}

// Outbox receives the items emitted by a processor. Offer blocks while the downstream buffers are full.
type Outbox interface {
	Offer(item any, eventTime time.Time) error
}

// Context describes the instance a processor runs as.
type Context struct {
	Job         string
	Vertex      string
	Index       int
	Parallelism int
	Guarantee   string
	Logger      *zap.SugaredLogger
}

// Processor is the processing routine of a vertex instance.
type Processor interface {
	// Init is called once before any other method.
	Init(ctx context.Context, pctx Context) error
	// Process handles an item of the input with the given ordinal.
	Process(ctx context.Context, ordinal int, item Item, out Outbox) error
	// ProcessWatermark is called when the watermark of the instance advances, the watermark is forwarded
	// downstream after it returns.
	ProcessWatermark(ctx context.Context, wm watermark.Watermark, out Outbox) error
	// Complete is called once all the inputs ended.
	Complete(ctx context.Context, out Outbox) error
	// SaveState returns a copy of the state, it must not share mutable data with the processor.
	SaveState(ctx context.Context) ([]snapshot.Entry, error)
	// RestoreState is called after Init with the entries saved by the instances owning them before.
	RestoreState(ctx context.Context, entries []snapshot.Entry) error
	// Close releases the resources.
	Close() error
}

// BatchProcessor is implemented by the processors handling a whole read batch at once.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, ordinal int, items []Item, out Outbox) error
}

// SnapshotAware is implemented by the processors taking part in the snapshot commit, i.e. the sinks.
type SnapshotAware interface {
	// OnBarrier is called when the barrier of the snapshot aligned, before SaveState.
	OnBarrier(ctx context.Context, snapshotID int64) error
	// OnSnapshotCommitted is called once the snapshot is committed. It may be called from another goroutine.
	OnSnapshotCommitted(ctx context.Context, snapshotID int64) error
}

// Supplier creates the processor of a vertex instance.
type Supplier func() Processor

// KeyFn extracts a grouping key.
type KeyFn func(any) any

// UserFunctionError is a failure raised by a user function.
type UserFunctionError struct {
	Vertex string
	Cause  error
}

func (e *UserFunctionError) Error() string {
	return fmt.Sprintf("user function failed in vertex %q: %v", e.Vertex, e.Cause)
}

func (e *UserFunctionError) Unwrap() error {
	return e.Cause
}

// Recover converts a panic raised by user code into a UserFunctionError stored in err.
func Recover(vertex string, err *error) {
	if r := recover(); r != nil {
		*err = &UserFunctionError{Vertex: vertex, Cause: fmt.Errorf("panic: %v", r)}
	}
}

// base implements the optional methods with no-ops.
type base struct {
	pctx Context
	log  *zap.SugaredLogger
}

func (b *base) Init(_ context.Context, pctx Context) error {
	b.pctx = pctx
	b.log = pctx.Logger
	if b.log == nil {
		b.log = zap.NewNop().Sugar()
	}
	return nil
}

func (b *base) ProcessWatermark(context.Context, watermark.Watermark, Outbox) error {
	return nil
}

func (b *base) Complete(context.Context, Outbox) error {
	return nil
}

func (b *base) SaveState(context.Context) ([]snapshot.Entry, error) {
	return nil, nil
}

func (b *base) RestoreState(context.Context, []snapshot.Entry) error {
	return nil
}

func (b *base) Close() error {
	return nil
}

func (b *base) userError(err error) error {
	return &UserFunctionError{Vertex: b.pctx.Vertex, Cause: err}
}
