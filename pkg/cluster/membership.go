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

// Package cluster holds the view of the cluster members the engine runs on: who is configured, who is reachable, and
// whether the reachable members form a quorum.
package cluster

import (
	"fmt"
	"sort"
	"sync"
)

// EventType is the kind of a membership change.
type EventType int

const (
	MemberLost EventType = iota
	MemberJoined
)

func (t EventType) String() string {
	if t == MemberJoined {
		return "joined"
	}
	return "lost"
}

// Event is a membership change.
type Event struct {
	Type   EventType
	Member string
}

// Membership is the cluster view of a member.
type Membership interface {
	// Local returns the local member.
	Local() string
	// Members returns the configured members, sorted.
	Members() []string
	// Reachable returns the members currently reachable, sorted.
	Reachable() []string
	// HasQuorum returns true if the reachable members are a majority of the configured ones.
	HasQuorum() bool
	// Subscribe returns a channel of membership changes and a function to cancel the subscription.
	Subscribe() (<-chan Event, func())
}

// Quorum returns the smallest majority of n members.
func Quorum(n int) int {
	return n/2 + 1
}

// StaticMembership is a fixed set of members in process. Members can be made unreachable and reachable again, which
// is how member failures are simulated.
type StaticMembership struct {
	lock        sync.Mutex
	local       string
	members     []string
	down        map[string]bool
	subscribers map[int]chan Event
	nextSub     int
}

var _ Membership = (*StaticMembership)(nil)

// NewStaticMembership returns the membership of the members, local is one of them.
func NewStaticMembership(local string, members []string) (*StaticMembership, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("cluster needs at least one member")
	}
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)
	found := false
	for i, m := range sorted {
		if i > 0 && sorted[i-1] == m {
			return nil, fmt.Errorf("duplicate member %q", m)
		}
		found = found || m == local
	}
	if !found {
		return nil, fmt.Errorf("local member %q is not one of the members %v", local, sorted)
	}
	return &StaticMembership{
		local:       local,
		members:     sorted,
		down:        make(map[string]bool),
		subscribers: make(map[int]chan Event),
	}, nil
}

func (m *StaticMembership) Local() string {
	return m.local
}

func (m *StaticMembership) Members() []string {
	return append([]string(nil), m.members...)
}

func (m *StaticMembership) Reachable() []string {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.reachable()
}

func (m *StaticMembership) reachable() []string {
	out := make([]string, 0, len(m.members))
	for _, member := range m.members {
		if !m.down[member] {
			out = append(out, member)
		}
	}
	return out
}

func (m *StaticMembership) HasQuorum() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.reachable()) >= Quorum(len(m.members))
}

// Subscribe returns a buffered channel of changes. A subscriber that does not keep up misses events, it can always
// read the current state with Reachable.
func (m *StaticMembership) Subscribe() (<-chan Event, func()) {
	m.lock.Lock()
	defer m.lock.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan Event, 16)
	m.subscribers[id] = ch
	return ch, func() {
		m.lock.Lock()
		defer m.lock.Unlock()
		if c, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(c)
		}
	}
}

// Kill makes the member unreachable.
func (m *StaticMembership) Kill(member string) error {
	return m.set(member, true)
}

// Revive makes the member reachable again.
func (m *StaticMembership) Revive(member string) error {
	return m.set(member, false)
}

func (m *StaticMembership) set(member string, down bool) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	i := sort.SearchStrings(m.members, member)
	if i == len(m.members) || m.members[i] != member {
		return fmt.Errorf("unknown member %q", member)
	}
	if m.down[member] == down {
		return nil
	}
	m.down[member] = down
	ev := Event{Type: MemberJoined, Member: member}
	if down {
		ev.Type = MemberLost
	}
	for _, ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}
