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

package snapshot

import (
	"sort"
	"sync"
)

// MemberStore keeps the instance states of the committed snapshots in the memory of the cluster members. Each
// snapshot is copied to every replica member; it can be read back as long as one replica is reachable.
type MemberStore struct {
	lock sync.RWMutex
	// data is indexed by member, then snapshot id
	data map[string]map[int64]map[InstanceID]InstanceState
}

func NewMemberStore() *MemberStore {
	return &MemberStore{data: make(map[string]map[int64]map[InstanceID]InstanceState)}
}

// Put stores a copy of the states on every replica.
func (s *MemberStore) Put(id int64, replicas []string, states map[InstanceID]InstanceState) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, m := range replicas {
		if s.data[m] == nil {
			s.data[m] = make(map[int64]map[InstanceID]InstanceState)
		}
		cp := make(map[InstanceID]InstanceState, len(states))
		for k, v := range states {
			cp[k] = InstanceState{Entries: append([]Entry(nil), v.Entries...), Completed: v.Completed}
		}
		s.data[m][id] = cp
	}
}

// Get returns the states of the snapshot from the first reachable replica holding it, and that replica.
func (s *MemberStore) Get(id int64, reachable []string) (map[InstanceID]InstanceState, string, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	for _, m := range reachable {
		if states, ok := s.data[m][id]; ok {
			return states, m, true
		}
	}
	return nil, "", false
}

// Replicas returns the members holding the snapshot, sorted.
func (s *MemberStore) Replicas(id int64) []string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	var out []string
	for m, snapshots := range s.data {
		if _, ok := snapshots[id]; ok {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

// Delete removes the snapshot from every member.
func (s *MemberStore) Delete(id int64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, snapshots := range s.data {
		delete(snapshots, id)
	}
}

// Forget drops everything the member holds, as when it restarts with an empty memory.
func (s *MemberStore) Forget(member string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.data, member)
}

// SelectReplicas picks backupCount+1 members out of the reachable ones, or all of them if there are fewer. The local
// member comes first when it is reachable, the others follow it in member order.
func SelectReplicas(reachable []string, local string, backupCount int) []string {
	sorted := append([]string(nil), reachable...)
	sort.Strings(sorted)
	start := 0
	for i, m := range sorted {
		if m == local {
			start = i
			break
		}
	}
	n := backupCount + 1
	if n > len(sorted) {
		n = len(sorted)
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, sorted[(start+i)%len(sorted)])
	}
	return out
}
