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

package sources

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/numaproj/dataflow/pkg/partition"
)

// ErrJournalSealed is returned when appending to a sealed journal.
var ErrJournalSealed = errors.New("journal is sealed")

// Journal is an in-memory, append-only, partitioned event log. Records keep their offset forever, so a reader can be
// rewound to any position. Readers see the end of the data only once the journal is sealed.
type Journal struct {
	name       string
	lock       sync.RWMutex
	partitions [][]Record
	sealed     bool
}

// NewJournal returns an empty journal with the given number of partitions.
func NewJournal(name string, partitions int) *Journal {
	if partitions <= 0 {
		partitions = 1
	}
	return &Journal{name: name, partitions: make([][]Record, partitions)}
}

// Append adds a record to the partition owning the key and returns its partition and offset.
func (j *Journal) Append(key, value any, ts time.Time) (int32, int64, error) {
	return j.AppendTo(int32(partition.Partition(key, len(j.partitions))), value, ts)
}

// AppendTo adds a record to the partition.
func (j *Journal) AppendTo(p int32, value any, ts time.Time) (int32, int64, error) {
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.sealed {
		return 0, 0, ErrJournalSealed
	}
	if p < 0 || int(p) >= len(j.partitions) {
		return 0, 0, fmt.Errorf("partition %d out of range [0, %d)", p, len(j.partitions))
	}
	j.partitions[p] = append(j.partitions[p], Record{Value: value, Timestamp: ts})
	return p, int64(len(j.partitions[p]) - 1), nil
}

// Seal marks the end of the data.
func (j *Journal) Seal() {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.sealed = true
}

// Len returns the number of records of the partition.
func (j *Journal) Len(p int32) int64 {
	j.lock.RLock()
	defer j.lock.RUnlock()
	return int64(len(j.partitions[p]))
}

func (j *Journal) read(p int32, from int64, max int) ([]Record, bool) {
	j.lock.RLock()
	defer j.lock.RUnlock()
	data := j.partitions[p]
	if from >= int64(len(data)) {
		return nil, j.sealed
	}
	to := from + int64(max)
	if to > int64(len(data)) {
		to = int64(len(data))
	}
	out := make([]Record, to-from)
	copy(out, data[from:to])
	return out, j.sealed && to == int64(len(data))
}

// Source returns the source reading the journal, partitions are spread over the instances round robin.
func (j *Journal) Source() Source {
	return journalSource{j}
}

type journalSource struct {
	j *Journal
}

func (s journalSource) Name() string {
	return s.j.name
}

func (s journalSource) Bounded() bool {
	return false
}

func (s journalSource) NewReader(_ context.Context, index, total int) (Reader, error) {
	if total <= 0 || index < 0 || index >= total {
		return nil, fmt.Errorf("invalid instance %d of %d", index, total)
	}
	r := &journalReader{j: s.j, offsets: make(Offsets)}
	for p := index; p < len(s.j.partitions); p += total {
		r.partitions = append(r.partitions, int32(p))
		r.offsets[int32(p)] = 0
	}
	return r, nil
}

type journalReader struct {
	j          *Journal
	partitions []int32
	offsets    Offsets
}

func (r *journalReader) Read(_ context.Context, max int) ([]Record, bool, error) {
	var records []Record
	eof := true
	for _, p := range r.partitions {
		if len(records) >= max {
			eof = false
			break
		}
		batch, done := r.j.read(p, r.offsets[p], max-len(records))
		r.offsets[p] += int64(len(batch))
		records = append(records, batch...)
		eof = eof && done
	}
	return records, eof, nil
}

func (r *journalReader) Position() Offsets {
	return r.offsets.Copy()
}

func (r *journalReader) Seek(offsets Offsets) error {
	for _, p := range r.partitions {
		if o, ok := offsets[p]; ok {
			r.offsets[p] = o
		}
	}
	return nil
}

func (r *journalReader) Close() error {
	return nil
}
