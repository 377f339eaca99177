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
)

// Policy is the routing policy of an edge.
type Policy int

const (
	// Unicast sends every item to exactly one consumer, chosen round-robin.
	Unicast Policy = iota
	// Partitioned sends every item to the consumer owning its key.
	Partitioned
	// Broadcast sends every item to all the consumers.
	Broadcast
	// Isolated connects each producer to a single consumer, producer index modulo the number of consumers.
	Isolated
)

func (p Policy) String() string {
	switch p {
	case Unicast:
		return "unicast"
	case Partitioned:
		return "partitioned"
	case Broadcast:
		return "broadcast"
	case Isolated:
		return "isolated"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// KeyFn extracts the partitioning key.
type KeyFn func(any) any

// Router resolves the consumer instances of the items emitted by one producer instance on one edge.
// It is not safe for concurrent use, each producer instance owns its routers.
type Router struct {
	policy    Policy
	keyFn     KeyFn
	producer  int
	consumers int
	next      int
	all       []int
	one       []int
}

// NewRouter returns a router. keyFn is required for Partitioned.
func NewRouter(policy Policy, keyFn KeyFn, producer, consumers int) (*Router, error) {
	if consumers <= 0 {
		return nil, fmt.Errorf("router needs at least one consumer, got %d", consumers)
	}
	if policy == Partitioned && keyFn == nil {
		return nil, fmt.Errorf("partitioned router needs a key function")
	}
	r := &Router{
		policy:    policy,
		keyFn:     keyFn,
		producer:  producer,
		consumers: consumers,
		next:      producer % consumers,
		all:       make([]int, consumers),
		one:       make([]int, 1),
	}
	for i := range r.all {
		r.all[i] = i
	}
	return r, nil
}

// Route returns the consumer indexes of the item. The returned slice is reused by the next call.
func (r *Router) Route(item any) []int {
	switch r.policy {
	case Broadcast:
		return r.all
	case Partitioned:
		r.one[0] = Partition(r.keyFn(item), r.consumers)
	case Isolated:
		r.one[0] = r.producer % r.consumers
	default:
		r.one[0] = r.next
		r.next = (r.next + 1) % r.consumers
	}
	return r.one
}

// All returns every consumer index, control messages are sent to all the consumers.
func (r *Router) All() []int {
	return r.all
}

// Policy returns the routing policy.
func (r *Router) Policy() Policy {
	return r.policy
}
