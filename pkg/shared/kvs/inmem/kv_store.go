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
Package inmem implements the KV store in memory. It is the default store of an engine that runs without JetStream.
*/
package inmem

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/numaproj/dataflow/pkg/shared/kvs"
	"github.com/numaproj/dataflow/pkg/shared/logging"
	"github.com/numaproj/dataflow/pkg/shared/util"
)

// kvEntry is each key-value entry in the store and the operation associated with the kv pair.
type kvEntry struct {
	key   string
	value []byte
	op    kvs.KVWatchOp
}

// Key returns the key
func (k kvEntry) Key() string {
	return k.key
}

// Value returns the value.
func (k kvEntry) Value() []byte {
	return k.value
}

// Operation returns the operation on that key-value pair.
func (k kvEntry) Operation() kvs.KVWatchOp {
	return k.op
}

// inMemStore implements the KV store backed up by a map.
type inMemStore struct {
	bucketName string
	kv         map[string][]byte
	lock       sync.RWMutex
	// watchers receive every operation applied after they subscribed
	watchers map[string]chan kvs.KVEntry
	isClosed bool
	doneCh   chan struct{}
	log      *zap.SugaredLogger
}

var _ kvs.KVStorer = (*inMemStore)(nil)

// NewKVInMemKVStore returns inMemStore.
func NewKVInMemKVStore(ctx context.Context, bucketName string) (kvs.KVStorer, error) {
	s := &inMemStore{
		bucketName: bucketName,
		kv:         make(map[string][]byte),
		watchers:   make(map[string]chan kvs.KVEntry),
		doneCh:     make(chan struct{}),
		log:        logging.FromContext(ctx).With("bucketName", bucketName),
	}
	return s, nil
}

// GetAllKeys returns all the keys in the key-value store, sorted.
func (kv *inMemStore) GetAllKeys(_ context.Context) ([]string, error) {
	kv.lock.RLock()
	defer kv.lock.RUnlock()
	keys := make([]string, 0, len(kv.kv))
	for key := range kv.kv {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// GetValue returns the value for a given key.
func (kv *inMemStore) GetValue(_ context.Context, k string) ([]byte, error) {
	kv.lock.RLock()
	defer kv.lock.RUnlock()
	if val, ok := kv.kv[k]; ok {
		out := make([]byte, len(val))
		copy(out, val)
		return out, nil
	}
	return nil, fmt.Errorf("key %s: %w", k, kvs.ErrKeyNotFound)
}

// GetStoreName returns the store name.
func (kv *inMemStore) GetStoreName() string {
	return kv.bucketName
}

// DeleteKey deletes the key from the in mem key-value store.
func (kv *inMemStore) DeleteKey(_ context.Context, k string) error {
	kv.lock.Lock()
	defer kv.lock.Unlock()
	val, ok := kv.kv[k]
	if !ok {
		return fmt.Errorf("key %s: %w", k, kvs.ErrKeyNotFound)
	}
	delete(kv.kv, k)
	kv.publish(kvEntry{key: k, value: val, op: kvs.KVDelete})
	return nil
}

// PutKV puts an element to the in mem key-value store.
func (kv *inMemStore) PutKV(_ context.Context, k string, v []byte) error {
	kv.lock.Lock()
	defer kv.lock.Unlock()
	if kv.isClosed {
		return fmt.Errorf("kv store %s is closed", kv.bucketName)
	}
	var val = make([]byte, len(v))
	copy(val, v)
	kv.kv[k] = val
	kv.publish(kvEntry{key: k, value: val, op: kvs.KVPut})
	return nil
}

// publish must be called with the lock held. Slow watchers lose updates instead of blocking writers.
func (kv *inMemStore) publish(entry kvEntry) {
	for id, ch := range kv.watchers {
		select {
		case ch <- entry:
		default:
			kv.log.Warnw("Watcher is not keeping up, dropping update", zap.String("watcher", id), zap.String("key", entry.key))
		}
	}
}

// Watch watches the key-value store and returns the updates channel. The current content is replayed as puts first.
func (kv *inMemStore) Watch(ctx context.Context) <-chan kvs.KVEntry {
	var id = util.RandomString(10)
	kv.lock.Lock()
	var updates = make(chan kvs.KVEntry, len(kv.kv)+256)
	keys := make([]string, 0, len(kv.kv))
	for k := range kv.kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		updates <- kvEntry{key: k, value: kv.kv[k], op: kvs.KVPut}
	}
	if kv.isClosed {
		kv.lock.Unlock()
		close(updates)
		return updates
	}
	kv.watchers[id] = updates
	kv.lock.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			kv.log.Debugw("Stopping watching", zap.String("watcher", id))
		case <-kv.doneCh:
		}
		kv.lock.Lock()
		delete(kv.watchers, id)
		close(updates)
		kv.lock.Unlock()
	}()
	return updates
}

// Close closes the in mem key-value store. It will close all the watchers.
func (kv *inMemStore) Close() {
	kv.lock.Lock()
	defer kv.lock.Unlock()
	if kv.isClosed {
		return
	}
	kv.isClosed = true
	close(kv.doneCh)
}
