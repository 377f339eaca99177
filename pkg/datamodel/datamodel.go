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

// Package datamodel holds the item types produced by the engine: key/value entries, tuples and items resolved by tag.
package datamodel

import (
	"fmt"
	"sort"
	"strings"
)

// Entry is a key and a value, emitted by keyed aggregations.
type Entry struct {
	Key   any
	Value any
}

func NewEntry(key, value any) Entry {
	return Entry{Key: key, Value: value}
}

func (e Entry) String() string {
	return fmt.Sprintf("%v=%v", e.Key, e.Value)
}

// Tuple2 is a pair.
type Tuple2 struct {
	F0 any
	F1 any
}

func NewTuple2(f0, f1 any) Tuple2 {
	return Tuple2{F0: f0, F1: f1}
}

func (t Tuple2) String() string {
	return fmt.Sprintf("(%v, %v)", t.F0, t.F1)
}

// Tuple3 is a triple.
type Tuple3 struct {
	F0 any
	F1 any
	F2 any
}

func NewTuple3(f0, f1, f2 any) Tuple3 {
	return Tuple3{F0: f0, F1: f1, F2: f2}
}

func (t Tuple3) String() string {
	return fmt.Sprintf("(%v, %v, %v)", t.F0, t.F1, t.F2)
}

// Tag identifies one input of a join or co-group builder. Tags are opaque; they are issued by a TagRegistry and only
// compared by value.
type Tag int

func (t Tag) String() string {
	return fmt.Sprintf("tag%d", int(t))
}

// TagRegistry issues tags in order, the first tag is reserved for the primary input.
type TagRegistry struct {
	next Tag
}

// Issue returns a new tag.
func (r *TagRegistry) Issue() Tag {
	t := r.next
	r.next++
	return t
}

// Issued returns the number of tags issued so far.
func (r *TagRegistry) Issued() int {
	return int(r.next)
}

// ItemsByTag holds one item per tag.
type ItemsByTag struct {
	items map[Tag]any
}

// NewItemsByTag builds an ItemsByTag from alternating tag and item arguments.
func NewItemsByTag(tagsAndItems ...any) ItemsByTag {
	ibt := ItemsByTag{items: make(map[Tag]any, len(tagsAndItems)/2)}
	for i := 0; i+1 < len(tagsAndItems); i += 2 {
		ibt.items[tagsAndItems[i].(Tag)] = tagsAndItems[i+1]
	}
	return ibt
}

// Get returns the item of the tag.
func (ibt ItemsByTag) Get(tag Tag) (any, bool) {
	v, ok := ibt.items[tag]
	return v, ok
}

// MustGet returns the item of the tag, it panics if the tag is unknown.
func (ibt ItemsByTag) MustGet(tag Tag) any {
	v, ok := ibt.items[tag]
	if !ok {
		panic(fmt.Sprintf("unknown %s", tag))
	}
	return v
}

// Put sets the item of the tag.
func (ibt *ItemsByTag) Put(tag Tag, item any) {
	if ibt.items == nil {
		ibt.items = make(map[Tag]any)
	}
	ibt.items[tag] = item
}

// Len returns the number of tags.
func (ibt ItemsByTag) Len() int {
	return len(ibt.items)
}

func (ibt ItemsByTag) String() string {
	tags := make([]int, 0, len(ibt.items))
	for t := range ibt.items {
		tags = append(tags, int(t))
	}
	sort.Ints(tags)
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = fmt.Sprintf("%s=%v", Tag(t), ibt.items[Tag(t)])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
