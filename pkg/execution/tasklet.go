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
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	dfv1 "github.com/numaproj/dataflow/pkg/apis/dataflow/v1alpha1"
	"github.com/numaproj/dataflow/pkg/isb"
	"github.com/numaproj/dataflow/pkg/isb/stores/simplebuffer"
	"github.com/numaproj/dataflow/pkg/metrics"
	"github.com/numaproj/dataflow/pkg/processor"
	"github.com/numaproj/dataflow/pkg/snapshot"
	"github.com/numaproj/dataflow/pkg/watermark"
)

// input is one inbound buffer of an instance, i.e. one producer instance of one inbound edge.
type input struct {
	ordinal  int
	priority int
	buf      *simplebuffer.InMemoryBuffer
	// backlog holds the messages read but not processed yet, an input blocked by a barrier keeps them.
	backlog []*isb.ReadMessage
	eos     bool
	barrier int64
	blocked bool
}

// processorTasklet runs a processor over the inputs of an instance.
type processorTasklet struct {
	id       snapshot.InstanceID
	proc     processor.Processor
	pctx     processor.Context
	inputs   []*input
	notifier chan struct{}
	out      *outbox
	opts     *options
	restored *snapshot.InstanceState
	log      *zap.SugaredLogger

	coalescer *watermark.Coalescer
	// drain is set for an instance restored as completed, it discards its input.
	drain        bool
	pending      int64
	lastSnapshot int64
}

func (t *processorTasklet) instance() snapshot.InstanceID {
	return t.id
}

func (t *processorTasklet) run(ctx context.Context) (err error) {
	defer func() {
		if cErr := t.proc.Close(); cErr != nil {
			t.log.Warnw("Failed to close processor", zap.Error(cErr))
		}
		var ufe *processor.UserFunctionError
		if errors.As(err, &ufe) {
			metrics.UserFunctionErrorsCount.WithLabelValues(t.pctx.Job, t.pctx.Vertex).Inc()
		}
	}()
	defer processor.Recover(t.id.Vertex, &err)
	t.out.ctx = ctx
	t.coalescer = watermark.NewCoalescer(len(t.inputs))
	t.lastSnapshot = t.opts.restoredID
	if err := t.proc.Init(ctx, t.pctx); err != nil {
		return fmt.Errorf("failed to init processor of %s: %w", t.id, err)
	}
	var entries []snapshot.Entry
	if t.restored != nil {
		entries = t.restored.Entries
		t.drain = t.restored.Completed
	}
	if err := t.proc.RestoreState(ctx, entries); err != nil {
		return fmt.Errorf("failed to restore %s: %w", t.id, err)
	}
	read := metrics.ReadMessagesCount.WithLabelValues(t.pctx.Job, t.pctx.Vertex, strconv.Itoa(t.pctx.Index))
	for !t.allEOS() {
		n, err := t.processAChunk(ctx)
		if err != nil {
			return err
		}
		read.Add(float64(n))
		if n > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.notifier:
		}
	}
	return t.complete(ctx)
}

func (t *processorTasklet) allEOS() bool {
	for _, in := range t.inputs {
		if !in.eos {
			return false
		}
	}
	return true
}

// readable returns the live inputs of the lowest priority, all of them are drained before the next priority.
func (t *processorTasklet) readable() []*input {
	lowest, found := 0, false
	for _, in := range t.inputs {
		if !in.eos && (!found || in.priority < lowest) {
			lowest, found = in.priority, true
		}
	}
	var out []*input
	for _, in := range t.inputs {
		if !in.eos && !in.blocked && in.priority == lowest {
			out = append(out, in)
		}
	}
	return out
}

// processAChunk reads a batch from every readable input and processes it. It returns the number of messages
// processed.
func (t *processorTasklet) processAChunk(ctx context.Context) (int, error) {
	total := 0
	for _, in := range t.readable() {
		if len(in.backlog) == 0 {
			msgs, err := in.buf.Read(ctx, int64(t.opts.readBatchSize))
			if err != nil {
				return total, err
			}
			in.backlog = msgs
		}
		n, err := t.processInput(ctx, in)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// processInput processes the backlog of the input until it is empty or the input is blocked, and acknowledges the
// processed messages.
func (t *processorTasklet) processInput(ctx context.Context, in *input) (int, error) {
	var done []isb.Offset
	defer func() {
		if len(done) > 0 {
			for _, err := range in.buf.Ack(ctx, done) {
				if err != nil {
					t.log.Errorw("Failed to ack", zap.Error(err))
				}
			}
		}
	}()
	for len(in.backlog) > 0 && !in.blocked && !in.eos {
		m := in.backlog[0]
		if m.Kind == isb.Data {
			end := 1
			for end < len(in.backlog) && in.backlog[end].Kind == isb.Data {
				end++
			}
			batch := in.backlog[:end]
			if err := t.processData(ctx, in.ordinal, batch); err != nil {
				return len(done), err
			}
			for _, dm := range batch {
				done = append(done, dm.ReadOffset)
			}
			in.backlog = in.backlog[end:]
			continue
		}
		in.backlog = in.backlog[1:]
		done = append(done, m.ReadOffset)
		var err error
		switch m.Kind {
		case isb.WMB:
			err = t.onWatermark(ctx, t.indexOf(in), watermark.Watermark(m.EventTime))
		case isb.Barrier:
			err = t.onBarrier(ctx, in, m.SnapshotID)
		case isb.EOS:
			err = t.onEOS(ctx, in)
		}
		if err != nil {
			return len(done), err
		}
	}
	return len(done), nil
}

func (t *processorTasklet) indexOf(in *input) int {
	for i, candidate := range t.inputs {
		if candidate == in {
			return i
		}
	}
	return -1
}

func (t *processorTasklet) processData(ctx context.Context, ordinal int, msgs []*isb.ReadMessage) error {
	if t.drain {
		return nil
	}
	items := make([]processor.Item, len(msgs))
	for i, m := range msgs {
		items[i] = processor.Item{Payload: m.Payload, EventTime: m.EventTime}
	}
	if bp, ok := t.proc.(processor.BatchProcessor); ok {
		return bp.ProcessBatch(ctx, ordinal, items, t.out)
	}
	for _, item := range items {
		if err := t.proc.Process(ctx, ordinal, item, t.out); err != nil {
			return err
		}
	}
	return nil
}

func (t *processorTasklet) onWatermark(ctx context.Context, idx int, wm watermark.Watermark) error {
	if coalesced, advanced := t.coalescer.Observe(idx, wm); advanced {
		return t.emitWatermark(ctx, coalesced)
	}
	return nil
}

func (t *processorTasklet) emitWatermark(ctx context.Context, wm watermark.Watermark) error {
	if !t.drain {
		if err := t.proc.ProcessWatermark(ctx, wm, t.out); err != nil {
			return err
		}
	}
	metrics.CurrentWatermark.WithLabelValues(t.pctx.Job, t.pctx.Vertex, strconv.Itoa(t.pctx.Index)).Set(float64(wm.UnixMilli()))
	return t.out.broadcast(isb.NewWatermarkMessage(wm.Time()))
}

// onBarrier records the barrier of the input. With exactly-once the input is blocked until the barrier aligned, unless
// the live inputs have different priorities: the inputs of a later priority are not read yet, blocking would never
// let the barrier align.
func (t *processorTasklet) onBarrier(ctx context.Context, in *input, id int64) error {
	in.barrier = id
	if id > t.pending {
		t.pending = id
	}
	if t.opts.guarantee == dfv1.ProcessingGuaranteeExactlyOnce && t.samePriority() {
		in.blocked = true
	}
	return t.checkAlignment(ctx)
}

func (t *processorTasklet) samePriority() bool {
	first := true
	var p int
	for _, in := range t.inputs {
		if in.eos {
			continue
		}
		if first {
			p, first = in.priority, false
		} else if in.priority != p {
			return false
		}
	}
	return true
}

func (t *processorTasklet) onEOS(ctx context.Context, in *input) error {
	in.eos = true
	in.blocked = false
	if wm, advanced := t.coalescer.Done(t.indexOf(in)); advanced {
		if err := t.emitWatermark(ctx, wm); err != nil {
			return err
		}
	}
	return t.checkAlignment(ctx)
}

// checkAlignment takes the snapshot once every live input delivered the pending barrier.
func (t *processorTasklet) checkAlignment(ctx context.Context) error {
	if t.pending <= t.lastSnapshot {
		return nil
	}
	for _, in := range t.inputs {
		if !in.eos && in.barrier < t.pending {
			return nil
		}
	}
	id := t.pending
	if aware, ok := t.proc.(processor.SnapshotAware); ok {
		if err := aware.OnBarrier(ctx, id); err != nil {
			return fmt.Errorf("failed to prepare snapshot %d in %s: %w", id, t.id, err)
		}
	}
	entries, err := t.proc.SaveState(ctx)
	if err != nil {
		return fmt.Errorf("failed to save the state of %s: %w", t.id, err)
	}
	t.opts.handler.Ack(id, t.id, entries)
	t.lastSnapshot = id
	for _, in := range t.inputs {
		in.blocked = false
	}
	return t.out.broadcast(isb.NewBarrierMessage(id))
}

// complete runs once every input ended.
func (t *processorTasklet) complete(ctx context.Context) error {
	if !t.drain {
		if err := t.proc.Complete(ctx, t.out); err != nil {
			return err
		}
	}
	entries, err := t.proc.SaveState(ctx)
	if err != nil {
		return fmt.Errorf("failed to save the final state of %s: %w", t.id, err)
	}
	t.opts.handler.Completed(t.id, entries)
	if err := t.out.broadcast(isb.NewWatermarkMessage(watermark.MaxWatermark.Time())); err != nil {
		return err
	}
	t.log.Debug("Instance completed")
	return t.out.broadcast(isb.NewEOSMessage())
}
