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
Package aggregate defines the aggregate operation used by grouping, windowed, rolling and co-group aggregation.

An Operation is built from five functions. Create returns an empty accumulator. Accumulate adds one item to an
accumulator, there is one accumulate function per input ordinal so that co-aggregations can treat their inputs
differently. Combine merges the second accumulator into the first one. Deduct, when present, removes the second
accumulator from the first one, it enables the incremental sliding window. Export turns the accumulator into the
result.

Accumulate, Combine and Deduct may mutate and return their first argument; they never mutate the second one.
*/
package aggregate

import (
	"fmt"
)

// CreateFn returns a new empty accumulator.
type CreateFn func() any

// AccumulateFn adds an item to the accumulator and returns the accumulator.
type AccumulateFn func(acc any, item any) any

// CombineFn merges other into acc and returns acc.
type CombineFn func(acc any, other any) any

// ExportFn converts the accumulator into the result.
type ExportFn func(acc any) any

// Operation is an aggregate operation.
type Operation struct {
	// Name is used in vertex names and logs.
	Name       string
	Create     CreateFn
	Accumulate []AccumulateFn
	Combine    CombineFn
	// Deduct is optional.
	Deduct CombineFn
	Export ExportFn
}

// Arity returns the number of inputs the operation accepts.
func (o Operation) Arity() int {
	return len(o.Accumulate)
}

// HasDeduct returns true if the operation can remove a partial result from an accumulator.
func (o Operation) HasDeduct() bool {
	return o.Deduct != nil
}

// AccumulateFn returns the accumulate function of the given input ordinal.
func (o Operation) AccumulateFn(ordinal int) AccumulateFn {
	return o.Accumulate[ordinal]
}

// Copy returns a copy of the accumulator that shares no mutable state with it.
func (o Operation) Copy(acc any) any {
	return o.Combine(o.Create(), acc)
}

// AndThen returns an operation exporting fn(export(acc)).
func (o Operation) AndThen(fn func(any) any) Operation {
	export := o.Export
	o.Export = func(acc any) any {
		return fn(export(acc))
	}
	return o
}

// WithoutDeduct returns the operation with the deduct function removed.
func (o Operation) WithoutDeduct() Operation {
	o.Deduct = nil
	return o
}

// Validate checks that all the mandatory functions are present.
func (o Operation) Validate() error {
	if o.Create == nil || o.Combine == nil || o.Export == nil {
		return fmt.Errorf("aggregate operation %q is missing create, combine or export", o.Name)
	}
	if len(o.Accumulate) == 0 {
		return fmt.Errorf("aggregate operation %q has no accumulate function", o.Name)
	}
	for i, fn := range o.Accumulate {
		if fn == nil {
			return fmt.Errorf("aggregate operation %q has no accumulate function for ordinal %d", o.Name, i)
		}
	}
	return nil
}
