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

package processor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	dfv1 "github.com/numaproj/dataflow/pkg/apis/dataflow/v1alpha1"
	"github.com/numaproj/dataflow/pkg/sinks"
	"github.com/numaproj/dataflow/pkg/snapshot"
)

// sinkWriter writes the items into the writer of its instance. Under EXACTLY_ONCE with a transactional writer the
// items written since the previous barrier are prepared at each barrier and committed when the snapshot commits.
// Otherwise they are flushed after every batch.
type sinkWriter struct {
	base
	sink          sinks.Sink
	writer        sinks.Writer
	txn           sinks.Transactional
	batch         []any
	lock          sync.Mutex
	prepared      []int64
	lastBarrier   int64
	finalTxn      int64
	transactional bool
}

var (
	_ BatchProcessor = (*sinkWriter)(nil)
	_ SnapshotAware  = (*sinkWriter)(nil)
)

// NewSinkWriter returns the supplier of a sink vertex processor.
func NewSinkWriter(sink sinks.Sink) Supplier {
	return func() Processor {
		return &sinkWriter{sink: sink}
	}
}

func (s *sinkWriter) Init(ctx context.Context, pctx Context) error {
	if err := s.base.Init(ctx, pctx); err != nil {
		return err
	}
	w, err := s.sink.NewWriter(ctx, pctx.Index, pctx.Parallelism)
	if err != nil {
		return fmt.Errorf("failed to create the writer of sink %q, %w", s.sink.Name(), err)
	}
	s.writer = w
	if txn, ok := w.(sinks.Transactional); ok && pctx.Guarantee == string(dfv1.ProcessingGuaranteeExactlyOnce) {
		s.txn = txn
		s.transactional = true
	}
	return nil
}

func (s *sinkWriter) Process(ctx context.Context, ordinal int, item Item, out Outbox) error {
	return s.ProcessBatch(ctx, ordinal, []Item{item}, out)
}

func (s *sinkWriter) ProcessBatch(ctx context.Context, _ int, items []Item, _ Outbox) error {
	s.batch = s.batch[:0]
	for _, item := range items {
		s.batch = append(s.batch, item.Payload)
	}
	if err := s.writer.Write(ctx, s.batch); err != nil {
		return fmt.Errorf("failed to write to sink %q, %w", s.sink.Name(), err)
	}
	if s.transactional {
		return nil
	}
	if err := s.writer.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush sink %q, %w", s.sink.Name(), err)
	}
	return nil
}

func (s *sinkWriter) OnBarrier(ctx context.Context, snapshotID int64) error {
	s.lastBarrier = snapshotID
	if !s.transactional {
		return s.writer.Flush(ctx)
	}
	if err := s.txn.Prepare(ctx, snapshotID); err != nil {
		return fmt.Errorf("failed to prepare transaction %d of sink %q, %w", snapshotID, s.sink.Name(), err)
	}
	s.lock.Lock()
	s.prepared = append(s.prepared, snapshotID)
	s.lock.Unlock()
	return nil
}

func (s *sinkWriter) OnSnapshotCommitted(ctx context.Context, snapshotID int64) error {
	if !s.transactional {
		return nil
	}
	s.lock.Lock()
	remaining := s.prepared[:0]
	for _, id := range s.prepared {
		if id > snapshotID {
			remaining = append(remaining, id)
		}
	}
	s.prepared = remaining
	s.lock.Unlock()
	return s.txn.Commit(ctx, snapshotID)
}

// Complete prepares the items written after the last barrier, the job commits them once every instance completed.
func (s *sinkWriter) Complete(ctx context.Context, _ Outbox) error {
	if !s.transactional {
		return s.writer.Flush(ctx)
	}
	s.finalTxn = s.lastBarrier + 1
	return s.OnBarrier(ctx, s.finalTxn)
}

type sinkTxnState struct {
	Prepared []int64
}

func (s *sinkWriter) SaveState(context.Context) ([]snapshot.Entry, error) {
	if !s.transactional {
		return nil, nil
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	prepared := make([]int64, len(s.prepared))
	copy(prepared, s.prepared)
	return []snapshot.Entry{snapshot.InstanceEntry(sinkTxnState{Prepared: prepared})}, nil
}

// RestoreState commits the transactions prepared before the restored snapshot was taken, the snapshot covering them
// committed but the commit may not have reached the sink. Every other transaction is left over by the failed
// execution and is aborted. It is called on every start, with no entries on a fresh one.
func (s *sinkWriter) RestoreState(ctx context.Context, entries []snapshot.Entry) error {
	if !s.transactional {
		return nil
	}
	var ids []int64
	for _, e := range entries {
		if st, ok := e.Value.(sinkTxnState); ok {
			ids = append(ids, st.Prepared...)
		}
	}
	if len(ids) > 0 {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		s.log.Infow("Committing the transactions of the restored snapshot", zap.Int64s("transactions", ids))
		if err := s.txn.Commit(ctx, ids[len(ids)-1]); err != nil {
			return fmt.Errorf("failed to commit the restored transactions of sink %q, %w", s.sink.Name(), err)
		}
		s.lastBarrier = ids[len(ids)-1]
	}
	if err := s.txn.Abort(ctx); err != nil {
		return fmt.Errorf("failed to abort the pending transactions of sink %q, %w", s.sink.Name(), err)
	}
	return nil
}

func (s *sinkWriter) Close() error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
