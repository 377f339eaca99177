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
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// KeyBytes returns the canonical encoding of a key. Values of different types never share an encoding.
func KeyBytes(key any) []byte {
	num := func(tag byte, v uint64) []byte {
		b := make([]byte, 9)
		b[0] = tag
		binary.BigEndian.PutUint64(b[1:], v)
		return b
	}
	switch k := key.(type) {
	case nil:
		return []byte{0}
	case string:
		return append([]byte{'s'}, k...)
	case []byte:
		return append([]byte{'b'}, k...)
	case int:
		return num('i', uint64(k))
	case int8:
		return num('i', uint64(k))
	case int16:
		return num('i', uint64(k))
	case int32:
		return num('i', uint64(k))
	case int64:
		return num('i', uint64(k))
	case uint:
		return num('u', uint64(k))
	case uint8:
		return num('u', uint64(k))
	case uint16:
		return num('u', uint64(k))
	case uint32:
		return num('u', uint64(k))
	case uint64:
		return num('u', k)
	case float32:
		return num('f', math.Float64bits(float64(k)))
	case float64:
		return num('f', math.Float64bits(k))
	case bool:
		if k {
			return []byte{'t'}
		}
		return []byte{'F'}
	default:
		return []byte(fmt.Sprintf("%T:%v", key, key))
	}
}

// Hash returns the hash of the key.
func Hash(key any) uint64 {
	return xxhash.Sum64(KeyBytes(key))
}

// Partition returns the instance in [0, n) owning the key.
func Partition(key any, n int) int {
	if n <= 1 {
		return 0
	}
	return int(Hash(key) % uint64(n))
}
