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

/*
Package join holds the building blocks of hash-join and co-group: join clauses, the hash tables of the side inputs,
and the explicit Absent marker used for outer-join rows.
*/
package join

import (
	"fmt"
)

// absent is the type of Absent.
type absent struct{}

func (absent) String() string {
	return "<absent>"
}

// Absent marks a missing match. It is distinct from nil so that a nil value stored in a side input is not mistaken
// for a missing one.
var Absent any = absent{}

// IsAbsent reports whether v is the Absent marker.
func IsAbsent(v any) bool {
	_, ok := v.(absent)
	return ok
}

// OrAbsent returns v if ok, Absent otherwise.
func OrAbsent(v any, ok bool) any {
	if !ok {
		return Absent
	}
	return v
}

// KeyFn extracts a join key.
type KeyFn func(any) any

// Clause joins a side input to the primary input. LeftKey is applied to the primary items, RightKey to the side
// items, and Project to the side items before they are stored.
type Clause struct {
	LeftKey  KeyFn
	RightKey KeyFn
	Project  func(any) any
}

// OnKeys returns a clause matching LeftKey(primary) with RightKey(side).
func OnKeys(left, right KeyFn) Clause {
	return Clause{LeftKey: left, RightKey: right, Project: func(v any) any { return v }}
}

// Projecting returns the clause with the side items projected by fn.
func (c Clause) Projecting(fn func(any) any) Clause {
	c.Project = fn
	return c
}

func (c Clause) Validate() error {
	if c.LeftKey == nil || c.RightKey == nil || c.Project == nil {
		return fmt.Errorf("join clause requires left key, right key and projection")
	}
	return nil
}

// Table is the hash table of a side input. A later item with the same key replaces the earlier one, which makes
// building the table idempotent under replay.
type Table struct {
	clause Clause
	rows   map[any]any
}

func NewTable(clause Clause) *Table {
	return &Table{clause: clause, rows: make(map[any]any)}
}

// Add stores the projected side item under its key.
func (t *Table) Add(sideItem any) {
	t.rows[t.clause.RightKey(sideItem)] = t.clause.Project(sideItem)
}

// Lookup returns the match of the primary item or Absent.
func (t *Table) Lookup(primary any) any {
	v, ok := t.rows[t.clause.LeftKey(primary)]
	return OrAbsent(v, ok)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Rows returns a copy of the rows.
func (t *Table) Rows() map[any]any {
	out := make(map[any]any, len(t.rows))
	for k, v := range t.rows {
		out[k] = v
	}
	return out
}

// Load replaces the rows.
func (t *Table) Load(rows map[any]any) {
	t.rows = make(map[any]any, len(rows))
	for k, v := range rows {
		t.rows[k] = v
	}
}

// NonEmpty returns the items, or a list holding only Absent if there are none.
func NonEmpty(items []any) []any {
	if len(items) == 0 {
		return []any{Absent}
	}
	return items
}

// CrossProduct returns every combination of one primary item with one item of each other list. Empty other lists
// contribute Absent, so each primary item appears at least once. An empty primary list yields nothing.
func CrossProduct(primary []any, others ...[]any) [][]any {
	rows := make([][]any, 0, len(primary))
	for _, p := range primary {
		rows = append(rows, []any{p})
	}
	for _, other := range others {
		other = NonEmpty(other)
		next := make([][]any, 0, len(rows)*len(other))
		for _, row := range rows {
			for _, o := range other {
				r := make([]any, len(row), len(row)+1)
				copy(r, row)
				next = append(next, append(r, o))
			}
		}
		rows = next
	}
	return rows
}
