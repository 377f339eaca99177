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

/* package simplebuffer is in memory ring buffer that implements the isb interface. It backs every local edge of a
running job. A slot is reusable only after the reader acknowledged it, so a slow consumer stalls its producer
instead of losing data. The locking implementation is very coarse.
*/

package simplebuffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/numaproj/dataflow/pkg/isb"
)

// InMemoryBuffer implements ISB interface.
type InMemoryBuffer struct {
	name         string
	size         int64
	buffer       []elem
	writeIdx     int64
	readIdx      int64
	partitionIdx int32
	options      *options
	rwlock       *sync.RWMutex
}

var _ isb.BufferReader = (*InMemoryBuffer)(nil)
var _ isb.BufferWriter = (*InMemoryBuffer)(nil)

// elem is the element stored in the buffer
type elem struct {
	message isb.Message
	dirty   bool
	pending bool
}

// NewInMemoryBuffer returns a new buffer.
func NewInMemoryBuffer(name string, size int64, partition int32, opts ...Option) *InMemoryBuffer {

	bufferOptions := &options{
		readTimeOut: 0, // non-blocking reads by default
	}

	for _, o := range opts {
		_ = o(bufferOptions)
	}

	sb := &InMemoryBuffer{
		name:         name,
		size:         size,
		buffer:       make([]elem, size),
		writeIdx:     int64(0),
		readIdx:      int64(0),
		partitionIdx: partition,
		rwlock:       new(sync.RWMutex),
		options:      bufferOptions,
	}
	return sb
}

// Stringer
func (b *InMemoryBuffer) String() string {
	b.rwlock.RLock()
	defer b.rwlock.RUnlock()
	return fmt.Sprintf("(%s) size:%d readIdx:%d writeIdx:%d", b.name, b.size, b.readIdx, b.writeIdx)
}

// GetName returns the buffer name.
func (b *InMemoryBuffer) GetName() string {
	return b.name
}

// GetPartitionIdx returns the partitionIdx.
func (b *InMemoryBuffer) GetPartitionIdx() int32 {
	return b.partitionIdx
}

// Pending returns the number of written but not yet acknowledged messages.
func (b *InMemoryBuffer) Pending(_ context.Context) (int64, error) {
	b.rwlock.RLock()
	defer b.rwlock.RUnlock()
	var count int64
	for i := range b.buffer {
		if b.buffer[i].dirty {
			count++
		}
	}
	return count, nil
}

// Close does nothing.
func (b *InMemoryBuffer) Close() error {
	return nil
}

// IsFull returns whether the queue is full.
func (b *InMemoryBuffer) IsFull() bool {
	b.rwlock.RLock()
	defer b.rwlock.RUnlock()
	return b.buffer[b.writeIdx].dirty
}

// IsEmpty returns whether the queue is empty.
func (b *InMemoryBuffer) IsEmpty() bool {
	b.rwlock.RLock()
	defer b.rwlock.RUnlock()
	return b.buffer[b.readIdx].pending || !b.buffer[b.readIdx].dirty
}

func (b *InMemoryBuffer) Write(_ context.Context, messages []isb.Message) ([]isb.Offset, []error) {
	var errs = make([]error, len(messages))
	writeOffsets := make([]isb.Offset, len(messages))
	written := false
	for idx, message := range messages {
		b.rwlock.Lock()
		currentIdx := b.writeIdx
		if b.buffer[currentIdx].dirty {
			b.rwlock.Unlock()
			// the rest fails too, a retry must not reorder the messages
			for i := idx; i < len(messages); i++ {
				errs[i] = isb.BufferWriteErr{Name: b.name, Full: true, Message: isb.BufferFullMessage}
			}
			break
		}
		b.buffer[currentIdx].message = message
		b.buffer[currentIdx].dirty = true
		b.writeIdx = (currentIdx + 1) % b.size
		writeOffsets[idx] = isb.NewSlotOffset(currentIdx, b.partitionIdx)
		b.rwlock.Unlock()
		written = true
	}
	if written {
		b.notify()
	}
	return writeOffsets, errs
}

// notify wakes up the reader without blocking the writer.
func (b *InMemoryBuffer) notify() {
	if b.options.notifier == nil {
		return
	}
	select {
	case b.options.notifier <- struct{}{}:
	default:
	}
}

func (b *InMemoryBuffer) blockIfEmpty(ctx context.Context) error {
	for {
		if !b.IsEmpty() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

// Read reads up to count messages. With the default zero read timeout it returns whatever is available right away.
func (b *InMemoryBuffer) Read(ctx context.Context, count int64) ([]*isb.ReadMessage, error) {
	var readMessages = make([]*isb.ReadMessage, 0, count)
	if b.options.readTimeOut > 0 {
		cctx, cancel := context.WithTimeout(ctx, b.options.readTimeOut)
		defer cancel()
		if err := b.blockIfEmpty(cctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return readMessages, nil
			}
			return readMessages, isb.BufferReadErr{Name: b.name, Empty: true, Message: err.Error()}
		}
	}
	b.rwlock.Lock()
	defer b.rwlock.Unlock()
	for i := int64(0); i < count; i++ {
		currentIdx := b.readIdx
		if b.buffer[currentIdx].pending || !b.buffer[currentIdx].dirty {
			break
		}
		// mark it as pending
		b.buffer[currentIdx].pending = true
		b.readIdx = (currentIdx + 1) % b.size
		readMessages = append(readMessages, b.buffer[currentIdx].message.ToReadMessage(isb.NewSlotOffset(currentIdx, b.partitionIdx)))
	}
	return readMessages, nil
}

// Ack acknowledges the given offsets
func (b *InMemoryBuffer) Ack(_ context.Context, offsets []isb.Offset) []error {
	errs := make([]error, len(offsets))
	for index, offset := range offsets {
		seq, err := offset.Sequence()
		if err != nil {
			errs[index] = isb.MessageAckErr{Name: b.name, Message: err.Error(), Offset: offset}
			continue
		}
		if seq < 0 || seq >= b.size {
			errs[index] = isb.MessageAckErr{
				Name:    b.name,
				Message: fmt.Sprintf("given index (%d) out of the buffer range (%d)", seq, b.size),
				Offset:  offset,
			}
			continue
		}

		b.rwlock.Lock()
		b.buffer[seq].pending = false
		b.buffer[seq].dirty = false
		b.buffer[seq].message = isb.Message{}
		b.rwlock.Unlock()
	}
	return errs
}
