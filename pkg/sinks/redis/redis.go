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

// Package redis holds a sink writing entries into a redis hash.
package redis

import (
	"context"
	"fmt"

	"github.com/numaproj/dataflow/pkg/datamodel"
	redisclient "github.com/numaproj/dataflow/pkg/shared/clients/redis"
	"github.com/numaproj/dataflow/pkg/sinks"
	"github.com/numaproj/dataflow/pkg/window"
)

// ToRedis sets the entries as fields of a redis hash. HSET replaces a field, so replays are idempotent.
type ToRedis struct {
	client *redisclient.RedisClient
	hash   string
	format func(any) string
}

// NewToRedis returns a redis hash sink, format turns the keys and the values into strings and defaults to fmt.Sprint.
func NewToRedis(client *redisclient.RedisClient, hash string, format func(any) string) *ToRedis {
	if format == nil {
		format = func(v any) string { return fmt.Sprint(v) }
	}
	return &ToRedis{client: client, hash: hash, format: format}
}

func (t *ToRedis) Name() string {
	return "redis-" + t.hash
}

func (t *ToRedis) Idempotent() bool {
	return true
}

func (t *ToRedis) NewWriter(context.Context, int, int) (sinks.Writer, error) {
	return &redisWriter{sink: t, fields: make(map[string]string)}, nil
}

type redisWriter struct {
	sink   *ToRedis
	fields map[string]string
}

func (w *redisWriter) Write(_ context.Context, items []any) error {
	for _, item := range items {
		switch v := item.(type) {
		case datamodel.Entry:
			w.fields[w.sink.format(v.Key)] = w.sink.format(v.Value)
		case window.KeyedWindowResult:
			w.fields[w.sink.format(v.Key)] = w.sink.format(v.Value)
		default:
			return fmt.Errorf("redis sink accepts entries, got %T", item)
		}
	}
	return nil
}

func (w *redisWriter) Flush(ctx context.Context) error {
	if err := w.sink.client.HSetAll(ctx, w.sink.hash, w.fields); err != nil {
		return fmt.Errorf("failed to write %d fields into hash %q, %w", len(w.fields), w.sink.hash, err)
	}
	w.fields = make(map[string]string)
	return nil
}

func (w *redisWriter) Close() error {
	return nil
}
