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

package inmem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/numaproj/dataflow/pkg/shared/kvs"
)

func TestInMemStoreOperations(t *testing.T) {
	ctx := context.Background()
	store, err := NewKVInMemKVStore(ctx, "snapshots")
	assert.NoError(t, err)
	defer store.Close()

	assert.Equal(t, "snapshots", store.GetStoreName())
	assert.NoError(t, store.PutKV(ctx, "key2", []byte("value2")))
	assert.NoError(t, store.PutKV(ctx, "key1", []byte("value1")))

	value, err := store.GetValue(ctx, "key1")
	assert.NoError(t, err)
	assert.Equal(t, []byte("value1"), value)

	keys, err := store.GetAllKeys(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"key1", "key2"}, keys)

	assert.NoError(t, store.DeleteKey(ctx, "key1"))
	_, err = store.GetValue(ctx, "key1")
	assert.True(t, errors.Is(err, kvs.ErrKeyNotFound))
	assert.True(t, errors.Is(store.DeleteKey(ctx, "key1"), kvs.ErrKeyNotFound))
}

func TestInMemStoreWatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, _ := NewKVInMemKVStore(ctx, "watch")
	assert.NoError(t, store.PutKV(ctx, "existing", []byte("1")))

	updates := store.Watch(ctx)
	first := <-updates
	assert.Equal(t, "existing", first.Key())
	assert.Equal(t, kvs.KVPut, first.Operation())

	assert.NoError(t, store.PutKV(ctx, "new", []byte("2")))
	assert.NoError(t, store.DeleteKey(ctx, "existing"))
	put := <-updates
	assert.Equal(t, "new", put.Key())
	assert.Equal(t, []byte("2"), put.Value())
	del := <-updates
	assert.Equal(t, kvs.KVDelete, del.Operation())
	assert.Equal(t, "KVDelete", del.Operation().String())

	store.Close()
	_, ok := <-updates
	assert.False(t, ok)
	assert.Error(t, store.PutKV(ctx, "closed", nil))
}
