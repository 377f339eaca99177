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

package jetstream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"

	natstest "github.com/numaproj/dataflow/pkg/shared/clients/nats/test"
	"github.com/numaproj/dataflow/pkg/shared/kvs"
)

func TestJetStreamKVStoreOperations(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	kvName := "testJetStreamKVStore"

	s := natstest.RunJetStreamServer(t)
	defer natstest.ShutdownJetStreamServer(t, s)

	testClient := natstest.JetStreamClient(t, s)
	defer testClient.Close()

	js, err := testClient.JetStreamContext()
	assert.NoError(t, err)

	// create a kv bucket for testing
	_, err = js.CreateKeyValue(&nats.KeyValueConfig{
		Bucket: kvName,
	})
	assert.NoError(t, err)

	kvStore, err := NewKVJetStreamKVStore(ctx, kvName, testClient)
	assert.NoError(t, err)
	defer kvStore.Close()

	keys, err := kvStore.GetAllKeys(ctx)
	assert.NoError(t, err)
	assert.Empty(t, keys)

	err = kvStore.PutKV(ctx, "key1", []byte("value1"))
	assert.NoError(t, err)
	err = kvStore.PutKV(ctx, "key2", []byte("value2"))
	assert.NoError(t, err)

	value, err := kvStore.GetValue(ctx, "key1")
	assert.NoError(t, err)
	assert.Equal(t, []byte("value1"), value)

	keys, err = kvStore.GetAllKeys(ctx)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"key1", "key2"}, keys)

	err = kvStore.DeleteKey(ctx, "key1")
	assert.NoError(t, err)
	_, err = kvStore.GetValue(ctx, "key1")
	assert.True(t, errors.Is(err, kvs.ErrKeyNotFound))

	keys, err = kvStore.GetAllKeys(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"key2"}, keys)
}

func TestJetStreamKVStoreCreateAndWatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	s := natstest.RunJetStreamServer(t)
	defer natstest.ShutdownJetStreamServer(t, s)

	testClient := natstest.JetStreamClient(t, s)
	defer testClient.Close()

	kvStore, err := NewKVJetStreamKVStore(ctx, "created", testClient, WithCreateBucket(1))
	assert.NoError(t, err)
	defer kvStore.Close()
	assert.Equal(t, "created", kvStore.GetStoreName())

	updates := kvStore.Watch(ctx)
	assert.NoError(t, kvStore.PutKV(ctx, "manifest", []byte("{}")))

	select {
	case e := <-updates:
		assert.Equal(t, "manifest", e.Key())
		assert.Equal(t, kvs.KVPut, e.Operation())
	case <-ctx.Done():
		t.Fatal("timed out waiting for the watch update")
	}
}
