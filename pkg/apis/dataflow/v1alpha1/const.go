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

package v1alpha1

import "time"

const (
	Project = "dataflow"

	// environment variables
	EnvDebug               = "DATAFLOW_DEBUG"
	EnvConfigPath          = "DATAFLOW_CONFIG_PATH"
	EnvJetStreamURL        = "DATAFLOW_JETSTREAM_URL"
	EnvJetStreamUser       = "DATAFLOW_JETSTREAM_USER"
	EnvJetStreamPassword   = "DATAFLOW_JETSTREAM_PASSWORD"
	EnvRedisURL            = "DATAFLOW_REDIS_URL"
	EnvKafkaBrokers        = "DATAFLOW_KAFKA_BROKERS"
	EnvKafkaConfig         = "DATAFLOW_KAFKA_CONFIG"
	EnvHealthCheckDisabled = "DATAFLOW_HEALTH_CHECK_DISABLED"
	EnvPPROF               = "DATAFLOW_PPROF"

	// Default edge buffer options
	DefaultBufferLength  = 1024
	DefaultReadBatchSize = 128

	// Default snapshot options
	DefaultSnapshotInterval = 10 * time.Second
	DefaultBackupCount      = 1
	DefaultMaxRestarts      = 10

	// DefaultSnapshotBucket is the kv bucket holding the snapshot manifests.
	DefaultSnapshotBucket = "dataflow-snapshots"

	DefaultMetricsPort = 2469

	// DefaultWatermarkEmitInterval zero means a watermark is emitted as soon as it advances.
	DefaultWatermarkEmitInterval = time.Duration(0)
)
