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
Package sinks holds the writers of the sink vertices. A sink is split into one writer per sink instance.

Under EXACTLY_ONCE a sink must either be idempotent under replay or implement Transactional, in which case the items
written between two snapshots become visible only once the later snapshot is committed.
*/
package sinks

import (
	"context"
)

// Sink describes a data sink.
type Sink interface {
	// Name is used to derive the vertex name.
	Name() string
	// NewWriter returns the writer of the sink instance index out of total.
	NewWriter(ctx context.Context, index, total int) (Writer, error)
}

// Writer writes the items of one sink instance, it is used from a single goroutine.
type Writer interface {
	Write(ctx context.Context, items []any) error
	// Flush makes the written items durable.
	Flush(ctx context.Context) error
	Close() error
}

// Transactional is implemented by the writers supporting a two phase commit. Transaction ids grow with the snapshot
// ids; Commit may be called from another goroutine than the writing one.
type Transactional interface {
	Writer
	// Prepare closes the pending transaction under the id.
	Prepare(ctx context.Context, id int64) error
	// Commit makes the prepared transactions with an id up to the given one visible.
	Commit(ctx context.Context, id int64) error
	// Abort drops the pending and prepared transactions.
	Abort(ctx context.Context) error
}

// Idempotent is implemented by the sinks whose writes can be replayed without duplicating the output.
type Idempotent interface {
	Idempotent() bool
}
