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
Package sideinput holds the stores a stage can look up while processing, the side inputs of MapUsingStore. A store
is read concurrently by every instance of the looking up vertex.
*/
package sideinput

import (
	"context"
)

// Result is the outcome of an asynchronous lookup.
type Result struct {
	Value any
	Found bool
	Err   error
}

// Store is a key-value lookup table.
type Store interface {
	Name() string
	// Get returns the value of the key, found is false if it is missing.
	Get(ctx context.Context, key any) (value any, found bool, err error)
	// GetAll returns the values of the keys that are present.
	GetAll(ctx context.Context, keys []any) (map[any]any, error)
	// GetAsync looks the key up in the background, the channel receives exactly one result.
	GetAsync(ctx context.Context, key any) <-chan Result
	Put(ctx context.Context, key, value any) error
}

// getAsync runs Get in a goroutine.
func getAsync(ctx context.Context, s Store, key any) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		v, ok, err := s.Get(ctx, key)
		ch <- Result{Value: v, Found: ok, Err: err}
	}()
	return ch
}
