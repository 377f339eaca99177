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

package aggregate

import (
	"strings"
)

// AllOf runs every operation over the same single input. The result is a []any holding the result of each
// operation in order. Deduct is available only if every operation has it.
func AllOf(ops ...Operation) Operation {
	names := make([]string, len(ops))
	deduct := true
	for i, op := range ops {
		names[i] = op.Name
		deduct = deduct && op.HasDeduct()
	}
	result := Operation{
		Name: "allOf(" + strings.Join(names, ",") + ")",
		Create: func() any {
			accs := make([]any, len(ops))
			for i, op := range ops {
				accs[i] = op.Create()
			}
			return accs
		},
		Accumulate: []AccumulateFn{func(acc any, item any) any {
			accs := acc.([]any)
			for i, op := range ops {
				accs[i] = op.Accumulate[0](accs[i], item)
			}
			return accs
		}},
		Combine: componentwise(ops, func(op Operation) CombineFn { return op.Combine }),
		Export:  exportAll(ops),
	}
	if deduct {
		result.Deduct = componentwise(ops, func(op Operation) CombineFn { return op.Deduct })
	}
	return result
}

// CoAggregate aggregates several inputs, ops[i] is applied to the items of input ordinal i. The result is a []any
// holding the result of each operation in input order.
func CoAggregate(ops ...Operation) Operation {
	names := make([]string, len(ops))
	deduct := true
	accumulate := make([]AccumulateFn, len(ops))
	for i, op := range ops {
		i, op := i, op
		names[i] = op.Name
		deduct = deduct && op.HasDeduct()
		accumulate[i] = func(acc any, item any) any {
			accs := acc.([]any)
			accs[i] = op.Accumulate[0](accs[i], item)
			return accs
		}
	}
	result := Operation{
		Name: "coAggregate(" + strings.Join(names, ",") + ")",
		Create: func() any {
			accs := make([]any, len(ops))
			for i, op := range ops {
				accs[i] = op.Create()
			}
			return accs
		},
		Accumulate: accumulate,
		Combine:    componentwise(ops, func(op Operation) CombineFn { return op.Combine }),
		Export:     exportAll(ops),
	}
	if deduct {
		result.Deduct = componentwise(ops, func(op Operation) CombineFn { return op.Deduct })
	}
	return result
}

func componentwise(ops []Operation, fnOf func(Operation) CombineFn) CombineFn {
	return func(acc any, other any) any {
		accs, others := acc.([]any), other.([]any)
		for i, op := range ops {
			accs[i] = fnOf(op)(accs[i], others[i])
		}
		return accs
	}
}

func exportAll(ops []Operation) ExportFn {
	return func(acc any) any {
		accs := acc.([]any)
		out := make([]any, len(ops))
		for i, op := range ops {
			out[i] = op.Export(accs[i])
		}
		return out
	}
}
