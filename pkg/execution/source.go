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
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/numaproj/dataflow/pkg/dag"
	"github.com/numaproj/dataflow/pkg/isb"
	"github.com/numaproj/dataflow/pkg/metrics"
	"github.com/numaproj/dataflow/pkg/processor"
	"github.com/numaproj/dataflow/pkg/snapshot"
	"github.com/numaproj/dataflow/pkg/sources"
	"github.com/numaproj/dataflow/pkg/watermark"
)

// sourceTasklet reads a source instance. It timestamps the records, drops or side-outputs the late ones, derives the
// watermark and injects the snapshot barriers requested by the coordinator.
type sourceTasklet struct {
	id          snapshot.InstanceID
	spec        *dag.SourceSpec
	parallelism int
	out         *outbox
	opts        *options
	restored    *snapshot.InstanceState
	log         *zap.SugaredLogger

	reader       sources.Reader
	tracker      *watermark.EventTimeTracker
	lastSnapshot int64
}

func (t *sourceTasklet) instance() snapshot.InstanceID {
	return t.id
}

func (t *sourceTasklet) run(ctx context.Context) (err error) {
	defer processor.Recover(t.id.Vertex, &err)
	t.out.ctx = ctx
	t.lastSnapshot = t.opts.restoredID
	t.tracker = watermark.NewEventTimeTracker(t.spec.EventTime.AllowedLag,
		watermark.WithEmitInterval(t.opts.watermarkEmitInterval), watermark.WithClock(t.opts.clock))
	t.reader, err = t.spec.Source.NewReader(ctx, t.id.Index, t.parallelism)
	if err != nil {
		return fmt.Errorf("failed to create the reader of %s: %w", t.id, err)
	}
	defer func() {
		if cErr := t.reader.Close(); cErr != nil {
			t.log.Warnw("Failed to close source reader", zap.Error(cErr))
		}
	}()
	if t.restored != nil {
		if err := t.restore(); err != nil {
			return err
		}
		if t.restored.Completed {
			return t.complete()
		}
	}

	read := metrics.ReadMessagesCount.WithLabelValues(t.opts.job, t.id.Vertex, strconv.Itoa(t.id.Index))
	idle := time.NewTimer(t.opts.idleWait)
	defer idle.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if id := t.opts.handler.RequestedSnapshot(); id > t.lastSnapshot {
			if err := t.barrier(id); err != nil {
				return err
			}
		}
		records, eof, err := t.reader.Read(ctx, t.opts.readBatchSize)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", t.id, err)
		}
		read.Add(float64(len(records)))
		if err := t.emit(records); err != nil {
			return err
		}
		if eof {
			return t.complete()
		}
		if len(records) == 0 {
			idle.Reset(t.opts.idleWait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-idle.C:
			}
		}
	}
}

func (t *sourceTasklet) restore() error {
	for _, e := range t.restored.Entries {
		pos, ok := e.Value.(snapshot.SourcePosition)
		if !ok {
			continue
		}
		if err := t.reader.Seek(sources.Offsets(pos.Offsets).Copy()); err != nil {
			return fmt.Errorf("failed to seek %s: %w", t.id, err)
		}
		t.tracker.Restore(watermark.FromMillis(pos.Watermark))
		t.log.Infow("Restored source position", zap.Any("offsets", pos.Offsets), zap.Int64("watermark", pos.Watermark))
	}
	return nil
}

func (t *sourceTasklet) emit(records []sources.Record) error {
	policy := t.spec.EventTime
	for _, rec := range records {
		ts := policy.EventTime(rec.Value, rec.Timestamp)
		if policy.Enabled && t.tracker.Observe(ts) {
			policy.Late.Handle(t.opts.job, t.id.Vertex, rec.Value, ts)
			continue
		}
		if err := t.out.Offer(rec.Value, ts); err != nil {
			return err
		}
	}
	if policy.Enabled {
		if wm, ok := t.tracker.TryEmit(); ok {
			metrics.CurrentWatermark.WithLabelValues(t.opts.job, t.id.Vertex, strconv.Itoa(t.id.Index)).Set(float64(wm.UnixMilli()))
			return t.out.broadcast(isb.NewWatermarkMessage(wm.Time()))
		}
	}
	return nil
}

func (t *sourceTasklet) position() []snapshot.Entry {
	return []snapshot.Entry{snapshot.InstanceEntry(snapshot.SourcePosition{
		Offsets:   t.reader.Position().Copy(),
		Watermark: t.tracker.Current().UnixMilli(),
	})}
}

// barrier saves the position and sends the barrier downstream, the items read so far belong to the snapshot.
func (t *sourceTasklet) barrier(id int64) error {
	t.opts.handler.Ack(id, t.id, t.position())
	t.lastSnapshot = id
	return t.out.broadcast(isb.NewBarrierMessage(id))
}

func (t *sourceTasklet) complete() error {
	t.tracker.Flush()
	t.opts.handler.Completed(t.id, t.position())
	if err := t.out.broadcast(isb.NewWatermarkMessage(watermark.MaxWatermark.Time())); err != nil {
		return err
	}
	t.log.Debug("Source completed")
	return t.out.broadcast(isb.NewEOSMessage())
}
