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
)

// StepKind is the kind of a stateless transform step.
type StepKind int

const (
	StepMap StepKind = iota
	StepFilter
	StepFlatMap
)

type (
	// MapFn maps an item, a nil result drops the item.
	MapFn func(any) (any, error)
	// FilterFn keeps the items it returns true for.
	FilterFn func(any) (bool, error)
	// FlatMapFn maps an item into zero or more items.
	FlatMapFn func(any) ([]any, error)
)

// Step is one stateless transform.
type Step struct {
	Kind    StepKind
	Map     MapFn
	Filter  FilterFn
	FlatMap FlatMapFn
}

// transform applies a fused chain of stateless steps. An empty chain forwards the items, it is used by merge.
type transform struct {
	base
	steps []Step
}

// NewTransform returns the supplier of a transform chain.
func NewTransform(steps ...Step) Supplier {
	return func() Processor {
		return &transform{steps: steps}
	}
}

func (t *transform) Process(_ context.Context, _ int, item Item, out Outbox) (err error) {
	defer Recover(t.pctx.Vertex, &err)
	return t.apply(0, item.Payload, item, out)
}

func (t *transform) apply(i int, v any, item Item, out Outbox) error {
	for ; i < len(t.steps); i++ {
		s := t.steps[i]
		switch s.Kind {
		case StepMap:
			mapped, err := s.Map(v)
			if err != nil {
				return t.userError(err)
			}
			if mapped == nil {
				return nil
			}
			v = mapped
		case StepFilter:
			keep, err := s.Filter(v)
			if err != nil {
				return t.userError(err)
			}
			if !keep {
				return nil
			}
		case StepFlatMap:
			results, err := s.FlatMap(v)
			if err != nil {
				return t.userError(err)
			}
			for _, r := range results {
				if r == nil {
					continue
				}
				if err := t.apply(i+1, r, item, out); err != nil {
					return err
				}
			}
			return nil
		default:
			return fmt.Errorf("unknown step kind %d", s.Kind)
		}
	}
	return out.Offer(v, item.EventTime)
}
