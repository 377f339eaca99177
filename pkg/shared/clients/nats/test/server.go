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

package test

import (
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	natstestserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"

	natsclient "github.com/numaproj/dataflow/pkg/shared/clients/nats"
)

// RunJetStreamServer starts a jetstream server
func RunJetStreamServer(t *testing.T) *server.Server {
	t.Helper()
	opts := natstestserver.DefaultTestOptions
	opts.Port = -1 // Random port
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	return natstestserver.RunServer(&opts)
}

// JetStreamClient connects a client to the test server.
func JetStreamClient(t *testing.T, s *server.Server) *natsclient.Client {
	t.Helper()
	nc, err := nats.Connect(s.ClientURL())
	if err != nil {
		t.Fatalf("Error connecting to the test server: %v", err)
	}
	c, err := natsclient.NewTestClient(nc)
	if err != nil {
		t.Fatalf("Error creating the test client: %v", err)
	}
	return c
}

// ShutdownJetStreamServer shuts down the jetstream server, its store directory is removed with the test.
func ShutdownJetStreamServer(t *testing.T, s *server.Server) {
	t.Helper()
	s.Shutdown()
	s.WaitForShutdown()
}
