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

package nats

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	dfv1 "github.com/numaproj/dataflow/pkg/apis/dataflow/v1alpha1"
	"github.com/numaproj/dataflow/pkg/shared/logging"
)

// Client is a client for NATS server which can be shared by multiple KV stores.
type Client struct {
	sync.Mutex
	nc    *nats.Conn
	jsCtx nats.JetStreamContext
	log   *zap.SugaredLogger
}

// NewNATSClient connects to the given url.
func NewNATSClient(ctx context.Context, url string, natsOptions ...nats.Option) (*Client, error) {
	log := logging.FromContext(ctx)
	opts := []nats.Option{
		// if max reconnects is set to -1, it will try to reconnect forever
		nats.MaxReconnects(-1),
		nats.PingInterval(3 * time.Second),
		nats.MaxPingsOutstanding(2),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Errorw("Nats default: error occurred for subscription", zap.Error(err))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("Nats default: connection closed")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Errorw("Nats default: disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("Nats default: reconnected")
		}),
	}
	opts = append(opts, natsOptions...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats url=%s: %w", url, err)
	}
	jsCtx, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get jetstream context: %w", err)
	}
	return &Client{nc: nc, jsCtx: jsCtx, log: log}, nil
}

// NewNATSClientFromEnv connects using the url and credentials found in the environment.
func NewNATSClientFromEnv(ctx context.Context) (*Client, error) {
	url, existing := os.LookupEnv(dfv1.EnvJetStreamURL)
	if !existing {
		return nil, fmt.Errorf("environment variable %q not found", dfv1.EnvJetStreamURL)
	}
	var opts []nats.Option
	if user, ok := os.LookupEnv(dfv1.EnvJetStreamUser); ok {
		opts = append(opts, nats.UserInfo(user, os.Getenv(dfv1.EnvJetStreamPassword)))
	}
	return NewNATSClient(ctx, url, opts...)
}

// NewTestClient wraps an established connection, used by tests.
func NewTestClient(nc *nats.Conn) (*Client, error) {
	jsCtx, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc, jsCtx: jsCtx, log: logging.NewLogger()}, nil
}

// JetStreamContext returns the JetStream context.
func (c *Client) JetStreamContext() (nats.JetStreamContext, error) {
	return c.jsCtx, nil
}

// BindKVStore binds to an existing KV bucket.
func (c *Client) BindKVStore(kvName string) (nats.KeyValue, error) {
	return c.jsCtx.KeyValue(kvName)
}

// CreateKVStore binds to the bucket, creating it when it does not exist.
func (c *Client) CreateKVStore(kvName string, history uint8) (nats.KeyValue, error) {
	c.Lock()
	defer c.Unlock()
	kv, err := c.jsCtx.KeyValue(kvName)
	if err == nil {
		return kv, nil
	}
	c.log.Infow("Creating KV bucket", zap.String("bucket", kvName))
	return c.jsCtx.CreateKeyValue(&nats.KeyValueConfig{Bucket: kvName, History: history})
}

// Close closes the NATS connection.
func (c *Client) Close() {
	c.nc.Close()
}
