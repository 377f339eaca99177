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
	"math"
	"sort"
	"time"

	"github.com/numaproj/dataflow/pkg/aggregate"
	"github.com/numaproj/dataflow/pkg/metrics"
	"github.com/numaproj/dataflow/pkg/snapshot"
	"github.com/numaproj/dataflow/pkg/watermark"
	"github.com/numaproj/dataflow/pkg/window"
)

// FramePartial is the partial accumulator of one key in one frame, sent from the first to the second window stage.
type FramePartial struct {
	End int64
	Key any
	Acc any
}

// WindowResultFn builds the item emitted for a window, the default is window.KeyedWindowResult.
type WindowResultFn func(start, end int64, key, result any) any

// frameAccumulator is the first window stage. It accumulates the items into the frames they belong to and emits the
// partial accumulators of a frame once the watermark passed its end.
type frameAccumulator struct {
	base
	keyFns []KeyFn
	op     aggregate.Operation
	policy window.SlidingWindowPolicy
	late   watermark.LatePolicy
	frames map[int64]map[any]any
	wm     int64
}

// NewFrameAccumulator returns the supplier of the first window stage. keyFns holds the key extractor of each input
// ordinal, a nil extractor puts every item under the nil key.
func NewFrameAccumulator(keyFns []KeyFn, op aggregate.Operation, def window.Definition, late watermark.LatePolicy) Supplier {
	return func() Processor {
		return &frameAccumulator{
			keyFns: keyFns,
			op:     op,
			policy: def.Policy(),
			late:   late,
			frames: make(map[int64]map[any]any),
			wm:     watermark.InitialWatermark.UnixMilli(),
		}
	}
}

func (f *frameAccumulator) Process(_ context.Context, ordinal int, item Item, _ Outbox) (err error) {
	defer Recover(f.pctx.Vertex, &err)
	end := f.policy.HigherFrameTs(item.EventTime.UnixMilli())
	if end <= f.wm {
		f.late.Handle(f.pctx.Job, f.pctx.Vertex, item.Payload, item.EventTime)
		return nil
	}
	var key any
	if ordinal < len(f.keyFns) && f.keyFns[ordinal] != nil {
		key = f.keyFns[ordinal](item.Payload)
	}
	frame, ok := f.frames[end]
	if !ok {
		frame = make(map[any]any)
		f.frames[end] = frame
	}
	acc, ok := frame[key]
	if !ok {
		acc = f.op.Create()
	}
	frame[key] = f.op.AccumulateFn(ordinal)(acc, item.Payload)
	return nil
}

func (f *frameAccumulator) ProcessWatermark(_ context.Context, wm watermark.Watermark, out Outbox) (err error) {
	defer Recover(f.pctx.Vertex, &err)
	f.wm = wm.UnixMilli()
	var ends []int64
	for end := range f.frames {
		if end <= f.wm {
			ends = append(ends, end)
		}
	}
	sort.Slice(ends, func(i, j int) bool { return ends[i] < ends[j] })
	for _, end := range ends {
		for key, acc := range f.frames[end] {
			if err := out.Offer(FramePartial{End: end, Key: key, Acc: acc}, time.UnixMilli(end)); err != nil {
				return err
			}
		}
		delete(f.frames, end)
	}
	return nil
}

func (f *frameAccumulator) SaveState(context.Context) ([]snapshot.Entry, error) {
	var entries []snapshot.Entry
	for end, frame := range f.frames {
		for key, acc := range frame {
			entries = append(entries, snapshot.KeyedEntry(key, FramePartial{End: end, Key: key, Acc: f.op.Copy(acc)}))
		}
	}
	return entries, nil
}

func (f *frameAccumulator) RestoreState(_ context.Context, entries []snapshot.Entry) error {
	for _, e := range entries {
		p, ok := e.Value.(FramePartial)
		if !ok {
			continue
		}
		frame, ok := f.frames[p.End]
		if !ok {
			frame = make(map[any]any)
			f.frames[p.End] = frame
		}
		if acc, ok := frame[p.Key]; ok {
			frame[p.Key] = f.op.Combine(acc, p.Acc)
		} else {
			frame[p.Key] = f.op.Copy(p.Acc)
		}
	}
	return nil
}

const unsetWindow = math.MinInt64

// slidingCombiner is the second window stage. It combines the frame partials of all the first stage instances and
// emits the result of every window whose end the watermark passed. With a deduct function the window accumulators
// slide incrementally, otherwise every window is recomputed from its frames.
type slidingCombiner struct {
	base
	op        aggregate.Operation
	policy    window.SlidingWindowPolicy
	mapOutput WindowResultFn
	frames    *window.SortedFrameList
	// sliding holds, before the window ending at nextWin is emitted, the frames of that window except the last one
	sliding       map[any]any
	keyFrameCount map[any]int
	nextWin       int64
}

// NewSlidingCombiner returns the supplier of the second window stage.
func NewSlidingCombiner(op aggregate.Operation, def window.Definition, mapOutput WindowResultFn) Supplier {
	if mapOutput == nil {
		mapOutput = func(start, end int64, key, result any) any {
			return window.NewKeyedWindowResult(start, end, key, result)
		}
	}
	return func() Processor {
		return &slidingCombiner{
			op:            op,
			policy:        def.Policy(),
			mapOutput:     mapOutput,
			frames:        window.NewSortedFrameList(),
			sliding:       make(map[any]any),
			keyFrameCount: make(map[any]int),
			nextWin:       unsetWindow,
		}
	}
}

func (s *slidingCombiner) Process(_ context.Context, _ int, item Item, _ Outbox) (err error) {
	defer Recover(s.pctx.Vertex, &err)
	p := item.Payload.(FramePartial)
	s.addPartial(p.End, p.Key, p.Acc)
	return nil
}

func (s *slidingCombiner) addPartial(end int64, key, acc any) {
	frame, _ := s.frames.InsertIfNotPresent(end)
	if existing, ok := frame.Accs[key]; ok {
		frame.Accs[key] = s.op.Combine(existing, acc)
	} else {
		frame.Accs[key] = acc
	}
}

func (s *slidingCombiner) ProcessWatermark(_ context.Context, wm watermark.Watermark, out Outbox) (err error) {
	defer Recover(s.pctx.Vertex, &err)
	limit := wm.UnixMilli()
	if s.nextWin == unsetWindow {
		// a frame past the watermark may still be preceded by partials of a slower first stage instance
		front := s.frames.Front()
		if front == nil || front.End > limit {
			return nil
		}
		s.nextWin = front.End
	}
	for s.nextWin <= limit {
		end := s.nextWin
		if s.op.HasDeduct() {
			err = s.emitIncremental(end, out)
		} else {
			err = s.emitRecomputed(end, out)
		}
		if err != nil {
			return err
		}
		s.frames.RemoveFrames(s.policy.OldestFrameOf(end))
		if !s.advance(end, limit) {
			break
		}
	}
	return nil
}

// advance moves to the next window holding data, it returns false if there is none. Without a sliding
// accumulator it only jumps to a frame the watermark already passed, all the partials before such a frame are in.
func (s *slidingCombiner) advance(end, limit int64) bool {
	next := end + s.policy.FrameSize()
	if len(s.sliding) == 0 {
		front := s.frames.Front()
		if front == nil || (front.End > next && front.End > limit) {
			s.nextWin = unsetWindow
			return false
		}
		if front.End > next {
			next = front.End
		}
	}
	s.nextWin = next
	return true
}

func (s *slidingCombiner) emitIncremental(end int64, out Outbox) error {
	if frame, ok := s.frames.Get(end); ok {
		for key, acc := range frame.Accs {
			if existing, ok := s.sliding[key]; ok {
				s.sliding[key] = s.op.Combine(existing, acc)
			} else {
				s.sliding[key] = s.op.Copy(acc)
			}
			s.keyFrameCount[key]++
		}
	}
	start := s.policy.WindowStart(end)
	for key, acc := range s.sliding {
		if err := s.emit(start, end, key, acc, out); err != nil {
			return err
		}
	}
	if oldest, ok := s.frames.Get(s.policy.OldestFrameOf(end)); ok {
		for key, acc := range oldest.Accs {
			s.keyFrameCount[key]--
			if s.keyFrameCount[key] <= 0 {
				delete(s.keyFrameCount, key)
				delete(s.sliding, key)
				continue
			}
			s.sliding[key] = s.op.Deduct(s.sliding[key], acc)
		}
	}
	return nil
}

func (s *slidingCombiner) emitRecomputed(end int64, out Outbox) error {
	start := s.policy.WindowStart(end)
	accs := make(map[any]any)
	for _, frame := range s.frames.Range(start, end) {
		for key, acc := range frame.Accs {
			if existing, ok := accs[key]; ok {
				accs[key] = s.op.Combine(existing, acc)
			} else {
				accs[key] = s.op.Copy(acc)
			}
		}
	}
	for key, acc := range accs {
		if err := s.emit(start, end, key, acc, out); err != nil {
			return err
		}
	}
	return nil
}

func (s *slidingCombiner) emit(start, end int64, key, acc any, out Outbox) error {
	metrics.WindowResultsCount.WithLabelValues(s.pctx.Job, s.pctx.Vertex).Inc()
	return out.Offer(s.mapOutput(start, end, key, s.op.Export(acc)), time.UnixMilli(end))
}

type nextWindowState struct {
	NextWin int64
}

func (s *slidingCombiner) SaveState(context.Context) ([]snapshot.Entry, error) {
	var entries []snapshot.Entry
	for _, frame := range s.frames.Items() {
		for key, acc := range frame.Accs {
			entries = append(entries, snapshot.KeyedEntry(key, FramePartial{End: frame.End, Key: key, Acc: s.op.Copy(acc)}))
		}
	}
	entries = append(entries, snapshot.InstanceEntry(nextWindowState{NextWin: s.nextWin}))
	return entries, nil
}

// RestoreState rebuilds the frames and, with a deduct function, the sliding accumulators from the frames of the
// window pending emission.
func (s *slidingCombiner) RestoreState(_ context.Context, entries []snapshot.Entry) error {
	for _, e := range entries {
		switch v := e.Value.(type) {
		case FramePartial:
			s.addPartial(v.End, v.Key, s.op.Copy(v.Acc))
		case nextWindowState:
			if v.NextWin != unsetWindow && (s.nextWin == unsetWindow || v.NextWin < s.nextWin) {
				s.nextWin = v.NextWin
			}
		}
	}
	if s.nextWin == unsetWindow || !s.op.HasDeduct() {
		return nil
	}
	for _, frame := range s.frames.Range(s.policy.WindowStart(s.nextWin), s.nextWin-1) {
		for key, acc := range frame.Accs {
			if existing, ok := s.sliding[key]; ok {
				s.sliding[key] = s.op.Combine(existing, acc)
			} else {
				s.sliding[key] = s.op.Copy(acc)
			}
			s.keyFrameCount[key]++
		}
	}
	return nil
}
