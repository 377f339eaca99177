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
Package sources holds the readers feeding the source vertices. A source is split into one reader per source instance;
a reader remembers its position as per partition offsets so that it can be rewound to a snapshot.
*/
package sources

import (
	"context"
	"time"
)

// Record is an item read from a source, Timestamp is zero when the source has no native timestamps.
type Record struct {
	Value     any
	Timestamp time.Time
}

// Offsets are the next offsets to read, by partition.
type Offsets map[int32]int64

// Copy returns a copy of the offsets.
func (o Offsets) Copy() Offsets {
	c := make(Offsets, len(o))
	for k, v := range o {
		c[k] = v
	}
	return c
}

// Source describes a data source.
type Source interface {
	// Name is used to derive the vertex name.
	Name() string
	// Bounded returns true if the source reaches the end of its data.
	Bounded() bool
	// NewReader returns the reader of the source instance index out of total.
	NewReader(ctx context.Context, index, total int) (Reader, error)
}

// Reader reads the data of one source instance. It is used from a single goroutine.
type Reader interface {
	// Read returns up to max records without blocking for long, eof is true once all the data was read.
	Read(ctx context.Context, max int) (records []Record, eof bool, err error)
	// Position returns the offsets of the next records to read.
	Position() Offsets
	// Seek rewinds the reader to the offsets.
	Seek(offsets Offsets) error
	// Close releases the resources.
	Close() error
}
