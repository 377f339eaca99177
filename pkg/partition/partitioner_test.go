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

package partition

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyBytesDistinguishesTypes(t *testing.T) {
	assert.NotEqual(t, KeyBytes("1"), KeyBytes(1))
	assert.NotEqual(t, KeyBytes(1), KeyBytes(uint(1)))
	assert.Equal(t, KeyBytes(int32(7)), KeyBytes(int64(7)))
	assert.NotEqual(t, KeyBytes(true), KeyBytes(false))
	assert.Equal(t, []byte{0}, KeyBytes(nil))
	type pair struct {
		A string
		B int
	}
	assert.Equal(t, KeyBytes(pair{"a", 1}), KeyBytes(pair{"a", 1}))
}

// items with the same key always go to the same instance
func TestPartitionIsDeterministic(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for n := 1; n <= 16; n++ {
		for i := 0; i < 500; i++ {
			key := fmt.Sprintf("key-%d", rnd.Intn(100))
			p := Partition(key, n)
			assert.GreaterOrEqual(t, p, 0)
			assert.Less(t, p, n)
			assert.Equal(t, p, Partition(key, n))
		}
	}
}

func TestPartitionSpreadsKeys(t *testing.T) {
	counts := make([]int, 4)
	for i := 0; i < 4000; i++ {
		counts[Partition(i, 4)]++
	}
	for _, c := range counts {
		assert.Greater(t, c, 500)
	}
}

func TestRouter(t *testing.T) {
	_, err := NewRouter(Unicast, nil, 0, 0)
	assert.Error(t, err)
	_, err = NewRouter(Partitioned, nil, 0, 3)
	assert.Error(t, err)

	rr, err := NewRouter(Unicast, nil, 1, 3)
	require.NoError(t, err)
	var got []int
	for i := 0; i < 4; i++ {
		got = append(got, rr.Route("x")[0])
	}
	assert.Equal(t, []int{1, 2, 0, 1}, got)

	bc, _ := NewRouter(Broadcast, nil, 0, 3)
	assert.Equal(t, []int{0, 1, 2}, bc.Route("x"))
	assert.Equal(t, Broadcast, bc.Policy())

	iso, _ := NewRouter(Isolated, nil, 5, 3)
	assert.Equal(t, []int{2}, iso.Route("x"))
	assert.Equal(t, []int{2}, iso.Route("y"))

	keyFn := func(v any) any { return v.(string)[:1] }
	pr, _ := NewRouter(Partitioned, keyFn, 0, 5)
	assert.Equal(t, pr.Route("apple")[0], pr.Route("avocado")[0])
	assert.Equal(t, Partition("a", 5), pr.Route("apple")[0])
	assert.Len(t, pr.All(), 5)
	assert.Equal(t, "partitioned", Partitioned.String())
}
