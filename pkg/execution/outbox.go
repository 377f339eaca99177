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
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/numaproj/dataflow/pkg/isb"
	"github.com/numaproj/dataflow/pkg/isb/stores/simplebuffer"
	"github.com/numaproj/dataflow/pkg/metrics"
	"github.com/numaproj/dataflow/pkg/partition"
	"github.com/numaproj/dataflow/pkg/processor"
	"github.com/numaproj/dataflow/pkg/shared/util"
)

// outEdge is one outbound edge of an instance, buffers is indexed by consumer instance.
type outEdge struct {
	router  *partition.Router
	buffers []*simplebuffer.InMemoryBuffer
}

// outbox writes the output of an instance to its outbound edges. A full buffer stalls the writer, nothing is dropped.
type outbox struct {
	ctx     context.Context
	edges   []outEdge
	written prometheus.Counter
	retries prometheus.Counter
}

var _ processor.Outbox = (*outbox)(nil)

func newOutbox(job, vertex string, index int, edges []outEdge) *outbox {
	labels := []string{job, vertex, strconv.Itoa(index)}
	return &outbox{
		ctx:     context.Background(),
		edges:   edges,
		written: metrics.WriteMessagesCount.WithLabelValues(labels...),
		retries: metrics.WriteRetriesCount.WithLabelValues(labels...),
	}
}

// Offer routes the item on every outbound edge.
func (o *outbox) Offer(item any, eventTime time.Time) error {
	msg := isb.NewDataMessage(item, eventTime)
	for _, e := range o.edges {
		for _, c := range e.router.Route(item) {
			if err := o.writeToBuffer(e.buffers[c], msg); err != nil {
				return err
			}
			o.written.Inc()
		}
	}
	return nil
}

// broadcast sends the control message to every consumer of every edge.
func (o *outbox) broadcast(msg isb.Message) error {
	for _, e := range o.edges {
		for _, buf := range e.buffers {
			if err := o.writeToBuffer(buf, msg); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeToBuffer blocks until the message is written or the context is done.
func (o *outbox) writeToBuffer(buf *simplebuffer.InMemoryBuffer, msg isb.Message) error {
	backoff := util.BufferFullBackoff
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		_, errs := buf.Write(o.ctx, []isb.Message{msg})
		err := errs[0]
		if err == nil {
			return nil
		}
		var bwe isb.BufferWriteErr
		if !errors.As(err, &bwe) || !bwe.IsFull() {
			return err
		}
		o.retries.Inc()
		d := backoff.Step()
		if timer == nil {
			timer = time.NewTimer(d)
		} else {
			timer.Reset(d)
		}
		select {
		case <-o.ctx.Done():
			return o.ctx.Err()
		case <-timer.C:
		}
	}
}
