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

package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuorum(t *testing.T) {
	assert.Equal(t, 1, Quorum(1))
	assert.Equal(t, 2, Quorum(2))
	assert.Equal(t, 2, Quorum(3))
	assert.Equal(t, 3, Quorum(5))
}

func TestStaticMembership(t *testing.T) {
	m, err := NewStaticMembership("b", []string{"c", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "b", m.Local())
	assert.Equal(t, []string{"a", "b", "c"}, m.Members())
	assert.True(t, m.HasQuorum())

	events, cancel := m.Subscribe()
	defer cancel()

	require.NoError(t, m.Kill("a"))
	assert.Equal(t, Event{Type: MemberLost, Member: "a"}, <-events)
	assert.Equal(t, []string{"b", "c"}, m.Reachable())
	assert.True(t, m.HasQuorum())

	require.NoError(t, m.Kill("c"))
	<-events
	assert.False(t, m.HasQuorum())

	require.NoError(t, m.Kill("c"), "killing twice is a no-op")
	require.NoError(t, m.Revive("c"))
	assert.Equal(t, Event{Type: MemberJoined, Member: "c"}, <-events)
	assert.True(t, m.HasQuorum())

	assert.Error(t, m.Kill("z"))
}

func TestStaticMembership_Errors(t *testing.T) {
	_, err := NewStaticMembership("a", nil)
	assert.Error(t, err)
	_, err = NewStaticMembership("x", []string{"a"})
	assert.Error(t, err)
	_, err = NewStaticMembership("a", []string{"a", "a"})
	assert.Error(t, err)
}

func TestSubscribe_Cancel(t *testing.T) {
	m, err := NewStaticMembership("a", []string{"a", "b"})
	require.NoError(t, err)
	events, cancel := m.Subscribe()
	cancel()
	cancel()
	_, ok := <-events
	assert.False(t, ok)
	require.NoError(t, m.Kill("b"))
}
