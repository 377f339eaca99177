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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/dataflow/pkg/datamodel"
)

func readValues(t *testing.T, r Reader, max int) ([]any, bool) {
	t.Helper()
	records, eof, err := r.Read(context.Background(), max)
	require.NoError(t, err)
	values := make([]any, 0, len(records))
	for _, rec := range records {
		values = append(values, rec.Value)
	}
	return values, eof
}

func TestListSource(t *testing.T) {
	src := NewListSource("numbers", []any{0, 1, 2, 3, 4, 5, 6})
	assert.True(t, src.Bounded())
	assert.Equal(t, "numbers", src.Name())

	r0, err := src.NewReader(context.Background(), 0, 2)
	require.NoError(t, err)
	r1, err := src.NewReader(context.Background(), 1, 2)
	require.NoError(t, err)

	values, eof := readValues(t, r0, 2)
	assert.Equal(t, []any{0, 2}, values)
	assert.False(t, eof)
	pos := r0.Position()
	values, eof = readValues(t, r0, 10)
	assert.Equal(t, []any{4, 6}, values)
	assert.True(t, eof)

	require.NoError(t, r0.Seek(pos))
	values, _ = readValues(t, r0, 10)
	assert.Equal(t, []any{4, 6}, values)

	values, eof = readValues(t, r1, 10)
	assert.Equal(t, []any{1, 3, 5}, values)
	assert.True(t, eof)

	_, err = src.NewReader(context.Background(), 2, 2)
	assert.Error(t, err)
}

func TestListSource_Empty(t *testing.T) {
	r, err := NewListSource("empty", nil).NewReader(context.Background(), 0, 1)
	require.NoError(t, err)
	values, eof := readValues(t, r, 10)
	assert.Empty(t, values)
	assert.True(t, eof)
}

func TestMapEntriesSource(t *testing.T) {
	src := NewMapEntriesSource("tickers", map[string]string{"b": "B", "a": "A"})
	r, err := src.NewReader(context.Background(), 0, 1)
	require.NoError(t, err)
	values, eof := readValues(t, r, 10)
	assert.True(t, eof)
	assert.Equal(t, []any{datamodel.NewEntry("a", "A"), datamodel.NewEntry("b", "B")}, values)
}

func TestJournal(t *testing.T) {
	j := NewJournal("trades", 3)
	ts := time.UnixMilli(100)
	for i := 0; i < 3; i++ {
		for n := 0; n < 2; n++ {
			_, off, err := j.AppendTo(int32(i), i*10+n, ts)
			require.NoError(t, err)
			assert.Equal(t, int64(n), off)
		}
	}
	_, _, err := j.AppendTo(5, "x", ts)
	assert.Error(t, err)

	src := j.Source()
	assert.False(t, src.Bounded())
	r0, err := src.NewReader(context.Background(), 0, 2)
	require.NoError(t, err)
	r1, err := src.NewReader(context.Background(), 1, 2)
	require.NoError(t, err)

	values, eof := readValues(t, r0, 10)
	assert.Equal(t, []any{0, 1, 20, 21}, values)
	assert.False(t, eof, "an open journal never ends")
	assert.Equal(t, Offsets{0: 2, 2: 2}, r0.Position())

	values, _ = readValues(t, r1, 1)
	assert.Equal(t, []any{10}, values)
	pos := r1.Position()

	j.Seal()
	_, _, err = j.AppendTo(0, "late", ts)
	assert.ErrorIs(t, err, ErrJournalSealed)

	values, eof = readValues(t, r1, 10)
	assert.Equal(t, []any{11}, values)
	assert.True(t, eof)

	require.NoError(t, r1.Seek(pos))
	values, eof = readValues(t, r1, 10)
	assert.Equal(t, []any{11}, values)
	assert.True(t, eof)

	values, eof = readValues(t, r0, 10)
	assert.Empty(t, values)
	assert.True(t, eof)
}

func TestJournal_AppendByKey(t *testing.T) {
	j := NewJournal("keyed", 4)
	p1, _, err := j.Append("AAPL", 1, time.Time{})
	require.NoError(t, err)
	p2, _, err := j.Append("AAPL", 2, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, int64(2), j.Len(p1))
}
