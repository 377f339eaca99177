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

package datamodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagRegistry(t *testing.T) {
	var r TagRegistry
	t0 := r.Issue()
	t1 := r.Issue()
	t2 := r.Issue()
	assert.Equal(t, Tag(0), t0)
	assert.NotEqual(t, t1, t2)
	assert.Equal(t, 3, r.Issued())
	assert.Equal(t, "tag1", t1.String())
}

func TestItemsByTag(t *testing.T) {
	ibt := NewItemsByTag(Tag(0), "trade", Tag(2), "product")
	v, ok := ibt.Get(Tag(0))
	assert.True(t, ok)
	assert.Equal(t, "trade", v)
	_, ok = ibt.Get(Tag(1))
	assert.False(t, ok)
	assert.Panics(t, func() { ibt.MustGet(Tag(1)) })

	ibt.Put(Tag(1), nil)
	v, ok = ibt.Get(Tag(1))
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, 3, ibt.Len())
	assert.Equal(t, "{tag0=trade, tag1=<nil>, tag2=product}", ibt.String())

	var empty ItemsByTag
	empty.Put(Tag(5), 1)
	assert.Equal(t, 1, empty.MustGet(Tag(5)))
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "a=1", NewEntry("a", 1).String())
	assert.Equal(t, "(1, ProductA)", NewTuple2(1, "ProductA").String())
	assert.Equal(t, "(1, 2, 3)", NewTuple3(1, 2, 3).String())
}
