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

// Package redis holds the redis client used by the redis hash sink.
package redis

import (
	"context"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	dfv1 "github.com/numaproj/dataflow/pkg/apis/dataflow/v1alpha1"
)

// RedisClient datatype to hold redis client attributes.
type RedisClient struct {
	Client redis.UniversalClient
}

// NewRedisClient returns a new Redis Client.
func NewRedisClient(options *redis.UniversalOptions) *RedisClient {
	client := new(RedisClient)
	client.Client = redis.NewUniversalClient(options)
	return client
}

// NewRedisClientFromEnv returns a client for the comma separated addresses in the environment, or nil if there are
// none.
func NewRedisClientFromEnv() *RedisClient {
	urls := os.Getenv(dfv1.EnvRedisURL)
	if urls == "" {
		return nil
	}
	return NewRedisClient(&redis.UniversalOptions{Addrs: strings.Split(urls, ",")})
}

// HSetAll writes the fields into the hash in one pipeline.
func (cl *RedisClient) HSetAll(ctx context.Context, hash string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	pipe := cl.Client.Pipeline()
	for k, v := range fields {
		pipe.HSet(ctx, hash, k, v)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// HGetAll returns the hash.
func (cl *RedisClient) HGetAll(ctx context.Context, hash string) (map[string]string, error) {
	return cl.Client.HGetAll(ctx, hash).Result()
}

// DeleteKeys deletes redis keys
func (cl *RedisClient) DeleteKeys(ctx context.Context, keys ...string) error {
	return cl.Client.Del(ctx, keys...).Err()
}

// Close closes the client.
func (cl *RedisClient) Close() error {
	return cl.Client.Close()
}
