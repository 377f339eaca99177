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
	"testing"

	"github.com/stretchr/testify/assert"
)

func run(op Operation, items ...any) any {
	acc := op.Create()
	for _, item := range items {
		acc = op.Accumulate[0](acc, item)
	}
	return acc
}

func TestCounting(t *testing.T) {
	op := Counting()
	assert.NoError(t, op.Validate())
	a := run(op, "a", "b", "c")
	b := run(op, "d")
	assert.Equal(t, int64(3), op.Export(a))
	combined := op.Combine(op.Copy(a), b)
	assert.Equal(t, int64(4), op.Export(combined))
	assert.Equal(t, int64(3), op.Export(op.Deduct(combined, b)))
	assert.True(t, op.HasDeduct())
	assert.Equal(t, 1, op.Arity())
}

func TestSummingAndAveraging(t *testing.T) {
	toInt := func(v any) int64 { return int64(v.(int)) }
	assert.Equal(t, int64(10), Summing(toInt).Export(run(Summing(toInt), 1, 2, 3, 4)))

	toFloat := func(v any) float64 { return float64(v.(int)) }
	avg := Averaging(toFloat)
	assert.Equal(t, float64(0), avg.Export(avg.Create()))
	a := run(avg, 1, 2, 3)
	b := run(avg, 10)
	assert.Equal(t, float64(2), avg.Export(a))
	assert.Equal(t, float64(4), avg.Export(avg.Combine(a, b)))
	assert.Equal(t, float64(10), avg.Export(avg.Deduct(avg.Combine(run(avg, 1, 2, 3), b), run(avg, 1, 2, 3))))

	sf := SummingFloat(toFloat)
	assert.Equal(t, 6.0, sf.Export(run(sf, 1, 2, 3)))
}

func TestMaxByMinBy(t *testing.T) {
	cmp := func(a, b any) int { return a.(int) - b.(int) }
	maxOp := MaxBy(cmp)
	assert.False(t, maxOp.HasDeduct())
	assert.Nil(t, maxOp.Export(maxOp.Create()))
	assert.Equal(t, 15, maxOp.Export(run(maxOp, 10, 7, 15, 12)))
	assert.Equal(t, 20, maxOp.Export(maxOp.Combine(run(maxOp, 10), run(maxOp, 20))))
	assert.Equal(t, 10, maxOp.Export(maxOp.Combine(run(maxOp, 10), maxOp.Create())))

	minOp := MinBy(cmp)
	assert.Equal(t, 7, minOp.Export(run(minOp, 10, 7, 15, 12)))
}

func TestToListCopyIsIndependent(t *testing.T) {
	op := ToList()
	a := run(op, 1, 2)
	c := op.Copy(a)
	c = op.Accumulate[0](c, 3)
	assert.Equal(t, []any{1, 2}, op.Export(a))
	assert.Equal(t, []any{1, 2, 3}, op.Export(c))
}

func TestAllOfAndCoAggregate(t *testing.T) {
	all := AllOf(Counting(), ToList())
	assert.False(t, all.HasDeduct())
	assert.Equal(t, []any{int64(2), []any{"x", "y"}}, all.Export(run(all, "x", "y")))

	co := CoAggregate(Counting(), ToList())
	assert.Equal(t, 2, co.Arity())
	acc := co.Create()
	acc = co.Accumulate[0](acc, "a")
	acc = co.Accumulate[1](acc, "b")
	acc = co.Accumulate[0](acc, "c")
	assert.Equal(t, []any{int64(2), []any{"b"}}, co.Export(acc))

	counts := AllOf(Counting(), Counting())
	assert.True(t, counts.HasDeduct())
	x := run(counts, 1, 2, 3)
	y := run(counts, 4)
	assert.Equal(t, []any{int64(3), int64(3)}, counts.Export(counts.Deduct(counts.Combine(x, y), y)))
}

func TestAndThenAndMapping(t *testing.T) {
	op := Counting().AndThen(func(v any) any { return v.(int64) * 10 })
	assert.Equal(t, int64(30), op.Export(run(op, 1, 2, 3)))

	lengths := Mapping(func(v any) any { return len(v.(string)) }, Summing(func(v any) int64 { return int64(v.(int)) }))
	assert.Equal(t, int64(7), lengths.Export(run(lengths, "abc", "defg")))
	assert.Nil(t, Counting().WithoutDeduct().Deduct)
}

func TestValidate(t *testing.T) {
	assert.Error(t, Operation{Name: "broken"}.Validate())
	op := Counting()
	op.Accumulate = []AccumulateFn{nil}
	assert.Error(t, op.Validate())
}
