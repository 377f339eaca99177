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

// Counting counts the items.
func Counting() Operation {
	return Operation{
		Name:   "counting",
		Create: func() any { return int64(0) },
		Accumulate: []AccumulateFn{func(acc any, _ any) any {
			return acc.(int64) + 1
		}},
		Combine: func(acc any, other any) any { return acc.(int64) + other.(int64) },
		Deduct:  func(acc any, other any) any { return acc.(int64) - other.(int64) },
		Export:  func(acc any) any { return acc.(int64) },
	}
}

// Summing sums the values extracted from the items.
func Summing(fn func(any) int64) Operation {
	return Operation{
		Name:   "summing",
		Create: func() any { return int64(0) },
		Accumulate: []AccumulateFn{func(acc any, item any) any {
			return acc.(int64) + fn(item)
		}},
		Combine: func(acc any, other any) any { return acc.(int64) + other.(int64) },
		Deduct:  func(acc any, other any) any { return acc.(int64) - other.(int64) },
		Export:  func(acc any) any { return acc.(int64) },
	}
}

// SummingFloat sums the float values extracted from the items.
func SummingFloat(fn func(any) float64) Operation {
	return Operation{
		Name:   "summingFloat",
		Create: func() any { return float64(0) },
		Accumulate: []AccumulateFn{func(acc any, item any) any {
			return acc.(float64) + fn(item)
		}},
		Combine: func(acc any, other any) any { return acc.(float64) + other.(float64) },
		Deduct:  func(acc any, other any) any { return acc.(float64) - other.(float64) },
		Export:  func(acc any) any { return acc.(float64) },
	}
}

type avgAcc struct {
	sum   float64
	count int64
}

// Averaging averages the values extracted from the items. The average of no items is zero.
func Averaging(fn func(any) float64) Operation {
	return Operation{
		Name:   "averaging",
		Create: func() any { return avgAcc{} },
		Accumulate: []AccumulateFn{func(acc any, item any) any {
			a := acc.(avgAcc)
			return avgAcc{sum: a.sum + fn(item), count: a.count + 1}
		}},
		Combine: func(acc any, other any) any {
			a, b := acc.(avgAcc), other.(avgAcc)
			return avgAcc{sum: a.sum + b.sum, count: a.count + b.count}
		},
		Deduct: func(acc any, other any) any {
			a, b := acc.(avgAcc), other.(avgAcc)
			return avgAcc{sum: a.sum - b.sum, count: a.count - b.count}
		},
		Export: func(acc any) any {
			a := acc.(avgAcc)
			if a.count == 0 {
				return float64(0)
			}
			return a.sum / float64(a.count)
		},
	}
}

// Comparator returns a negative number, zero or a positive number when a is less than, equal to or greater than b.
type Comparator func(a, b any) int

// maxAcc holds the current extreme item, set is false until the first item.
type maxAcc struct {
	item any
	set  bool
}

func extremeBy(name string, better func(item, current any) bool) Operation {
	pick := func(acc any, candidate maxAcc) any {
		a := acc.(maxAcc)
		if !candidate.set {
			return a
		}
		if !a.set || better(candidate.item, a.item) {
			return candidate
		}
		return a
	}
	return Operation{
		Name:   name,
		Create: func() any { return maxAcc{} },
		Accumulate: []AccumulateFn{func(acc any, item any) any {
			return pick(acc, maxAcc{item: item, set: true})
		}},
		Combine: func(acc any, other any) any { return pick(acc, other.(maxAcc)) },
		Export: func(acc any) any {
			return acc.(maxAcc).item
		},
	}
}

// MaxBy keeps the greatest item according to the comparator. The first of equal items wins.
func MaxBy(cmp Comparator) Operation {
	return extremeBy("maxBy", func(item, current any) bool { return cmp(item, current) > 0 })
}

// MinBy keeps the least item according to the comparator. The first of equal items wins.
func MinBy(cmp Comparator) Operation {
	return extremeBy("minBy", func(item, current any) bool { return cmp(item, current) < 0 })
}

// ToList collects the items in arrival order.
func ToList() Operation {
	return Operation{
		Name:   "toList",
		Create: func() any { return []any(nil) },
		Accumulate: []AccumulateFn{func(acc any, item any) any {
			return append(acc.([]any), item)
		}},
		Combine: func(acc any, other any) any {
			return append(acc.([]any), other.([]any)...)
		},
		Export: func(acc any) any {
			l := acc.([]any)
			out := make([]any, len(l))
			copy(out, l)
			return out
		},
	}
}

// Mapping applies fn to every item before passing it to the downstream operation.
func Mapping(fn func(any) any, downstream Operation) Operation {
	accumulate := make([]AccumulateFn, len(downstream.Accumulate))
	for i, a := range downstream.Accumulate {
		a := a
		accumulate[i] = func(acc any, item any) any { return a(acc, fn(item)) }
	}
	downstream.Name = "mapping(" + downstream.Name + ")"
	downstream.Accumulate = accumulate
	return downstream
}
