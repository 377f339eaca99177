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
Package jetstream implements the kv store and watcher using Jetstream. It is used when snapshot manifests or side
inputs must outlive the engine process.
*/
package jetstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	jsclient "github.com/numaproj/dataflow/pkg/shared/clients/nats"
	"github.com/numaproj/dataflow/pkg/shared/kvs"
	"github.com/numaproj/dataflow/pkg/shared/logging"
)

// jetStreamStore implements the KV store backed up by Jetstream.
type jetStreamStore struct {
	kvName string
	client *jsclient.Client
	kv     nats.KeyValue
	doneCh chan struct{}

	log  *zap.SugaredLogger
	opts *options
}

var _ kvs.KVStorer = (*jetStreamStore)(nil)

// NewKVJetStreamKVStore returns KVJetStreamStore.
func NewKVJetStreamKVStore(ctx context.Context, kvName string, client *jsclient.Client, opts ...Option) (kvs.KVStorer, error) {
	kvOpts := defaultOptions()
	for _, o := range opts {
		o(kvOpts)
	}

	var (
		kvStore nats.KeyValue
		err     error
	)
	if kvOpts.create {
		kvStore, err = client.CreateKVStore(kvName, kvOpts.history)
	} else {
		kvStore, err = client.BindKVStore(kvName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to bind kv store: %w", err)
	}

	return &jetStreamStore{
		kvName: kvName,
		kv:     kvStore,
		client: client,
		opts:   kvOpts,
		doneCh: make(chan struct{}),
		log:    logging.FromContext(ctx).With("kvName", kvName),
	}, nil
}

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

// GetAllKeys returns all the keys in the key-value store.
func (jss *jetStreamStore) GetAllKeys(_ context.Context) ([]string, error) {
	keys, err := jss.kv.Keys()
	if errors.Is(err, nats.ErrNoKeysFound) {
		return []string{}, nil
	}
	return keys, err
}

// GetValue returns the value for a given key.
func (jss *jetStreamStore) GetValue(_ context.Context, k string) ([]byte, error) {
	keyValueEntry, err := jss.kv.Get(k)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, fmt.Errorf("key %s: %w", k, kvs.ErrKeyNotFound)
		}
		return nil, err
	}
	return keyValueEntry.Value(), nil
}

// GetStoreName returns the store name.
func (jss *jetStreamStore) GetStoreName() string {
	return jss.kv.Bucket()
}

// DeleteKey deletes the key from the JS key-value store.
func (jss *jetStreamStore) DeleteKey(_ context.Context, k string) error {
	if _, err := jss.kv.Get(k); errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("key %s: %w", k, kvs.ErrKeyNotFound)
	}
	// will return error if nats connection is closed
	return jss.kv.Delete(k)
}

// PutKV puts an element to the JS key-value store.
func (jss *jetStreamStore) PutKV(_ context.Context, k string, v []byte) error {
	// will return error if nats connection is closed
	_, err := jss.kv.Put(k, v)
	return err
}

// Watch watches the key-value store (aka bucket) and returns the updates channel to read the updates on the KV store.
func (jss *jetStreamStore) Watch(ctx context.Context) <-chan kvs.KVEntry {
	var updates = make(chan kvs.KVEntry)
	kvWatcher, err := jss.kv.WatchAll(nats.Context(ctx))
	if err != nil {
		jss.log.Errorw("Creating watcher failed", zap.Error(err))
		close(updates)
		return updates
	}
	go func() {
		defer close(updates)
		defer func() {
			if err := kvWatcher.Stop(); err != nil {
				jss.log.Warnw("Failed to stop the watcher", zap.Error(err))
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-jss.doneCh:
				return
			case value, ok := <-kvWatcher.Updates():
				if !ok {
					return
				}
				// nil marks the end of the initial values
				if value == nil {
					continue
				}
				var entry kvEntry
				switch value.Operation() {
				case nats.KeyValuePut:
					entry = kvEntry{key: value.Key(), value: value.Value(), op: kvs.KVPut}
				case nats.KeyValueDelete:
					entry = kvEntry{key: value.Key(), value: value.Value(), op: kvs.KVDelete}
				case nats.KeyValuePurge:
					entry = kvEntry{key: value.Key(), op: kvs.KVPurge}
				}
				select {
				case updates <- entry:
				case <-ctx.Done():
					return
				case <-jss.doneCh:
					return
				}
			}
		}
	}()
	return updates
}

// Close doesn't close the JetStream connection, it is owned by the caller. It stops the watchers.
func (jss *jetStreamStore) Close() {
	select {
	case <-jss.doneCh:
	default:
		close(jss.doneCh)
	}
}
