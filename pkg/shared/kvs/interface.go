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
Package kvs defines the key-value storage used for snapshot manifests and for side input data. A store is a single
bucket; keys are flat strings.
*/

package kvs

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by GetValue and DeleteKey when the key is missing.
var ErrKeyNotFound = errors.New("key not found")

// KVStorer is one bucket of the store. The snapshot coordinator keeps its manifests in one, a side input lookup
// table lives in another.
type KVStorer interface {
	// GetAllKeys lists the keys of the bucket, the order is unspecified.
	GetAllKeys(context.Context) ([]string, error)
	// DeleteKey deletes the key, ErrKeyNotFound when it is missing.
	DeleteKey(context.Context, string) error
	// PutKV creates or overwrites the key.
	PutKV(context.Context, string, []byte) error
	// GetValue gets the value of the given key, ErrKeyNotFound when it is missing.
	GetValue(context.Context, string) ([]byte, error)
	// GetStoreName returns the bucket name.
	GetStoreName() string
	// Watch streams the updates made after the call. The channel is closed when the context is done or the
	// store is closed.
	Watch(context.Context) <-chan KVEntry
	// Close closes the backend connection
	Close()
}

// KVWatchOp is the operation as detected by the KV watcher.
type KVWatchOp int64

const (
	// KVPut indicates an element has been put/added into the KV store.
	KVPut KVWatchOp = iota
	// KVDelete represents a delete.
	KVDelete
	// KVPurge is sent by JetStream when the bucket is purged, a watcher drops everything it cached.
	KVPurge
)

func (kvOp KVWatchOp) String() string {
	switch kvOp {
	case KVPut:
		return "KVPut"
	case KVDelete:
		return "KVDelete"
	case KVPurge:
		return "KVPurge"
	default:
		return "UnknownOP"
	}
}

// KVEntry is one update seen by Watch.
type KVEntry interface {
	// Key is the key that was retrieved.
	Key() string
	// Value is the retrieved value.
	Value() []byte
	// Operation returns `KVWatchOp`.
	Operation() KVWatchOp
}
