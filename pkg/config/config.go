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

// Package config loads the engine configuration. Values come from an optional yaml file, overridden by DATAFLOW_
// prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	dfv1 "github.com/numaproj/dataflow/pkg/apis/dataflow/v1alpha1"
)

const (
	SnapshotStoreMemory    = "memory"
	SnapshotStoreJetStream = "jetstream"
)

// GlobalConfig is the engine scope configuration. It is safe for concurrent use and reloaded when the file changes.
type GlobalConfig struct {
	conf *config
	lock *sync.RWMutex
}

type config struct {
	Cluster   ClusterConfig   `mapstructure:"cluster"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ClusterConfig lists the members of the cluster, the first member is the local one unless Local is set.
type ClusterConfig struct {
	Members []string `mapstructure:"members"`
	Local   string   `mapstructure:"local"`
}

// ExecutionConfig tunes the tasklets.
type ExecutionConfig struct {
	DefaultParallelism    int           `mapstructure:"defaultParallelism"`
	BufferLength          int64         `mapstructure:"bufferLength"`
	ReadBatchSize         int64         `mapstructure:"readBatchSize"`
	WatermarkEmitInterval time.Duration `mapstructure:"watermarkEmitInterval"`
}

// SnapshotConfig selects the store of the snapshot manifests.
type SnapshotConfig struct {
	Store  string `mapstructure:"store"`
	Bucket string `mapstructure:"bucket"`
}

// MetricsConfig configures the metrics server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

func (g *GlobalConfig) GetCluster() ClusterConfig {
	g.lock.RLock()
	defer g.lock.RUnlock()
	c := g.conf.Cluster
	c.Members = append([]string(nil), g.conf.Cluster.Members...)
	return c
}

func (g *GlobalConfig) GetExecution() ExecutionConfig {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.conf.Execution
}

func (g *GlobalConfig) GetSnapshot() SnapshotConfig {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.conf.Snapshot
}

func (g *GlobalConfig) GetMetrics() MetricsConfig {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.conf.Metrics
}

// LocalMember returns the name of the local member.
func (c ClusterConfig) LocalMember() string {
	if c.Local != "" {
		return c.Local
	}
	if len(c.Members) > 0 {
		return c.Members[0]
	}
	return "local"
}

func (c *config) validate() error {
	if c.Execution.DefaultParallelism <= 0 {
		return fmt.Errorf("execution.defaultParallelism must be positive, got %d", c.Execution.DefaultParallelism)
	}
	if c.Execution.BufferLength <= 0 || c.Execution.ReadBatchSize <= 0 {
		return fmt.Errorf("execution.bufferLength and execution.readBatchSize must be positive")
	}
	switch c.Snapshot.Store {
	case SnapshotStoreMemory, SnapshotStoreJetStream:
	default:
		return fmt.Errorf("unsupported snapshot store %q", c.Snapshot.Store)
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(dfv1.Project)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("cluster.members", []string{"local"})
	v.SetDefault("execution.defaultParallelism", 2)
	v.SetDefault("execution.bufferLength", dfv1.DefaultBufferLength)
	v.SetDefault("execution.readBatchSize", dfv1.DefaultReadBatchSize)
	v.SetDefault("execution.watermarkEmitInterval", dfv1.DefaultWatermarkEmitInterval)
	v.SetDefault("snapshot.store", SnapshotStoreMemory)
	v.SetDefault("snapshot.bucket", dfv1.DefaultSnapshotBucket)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", dfv1.DefaultMetricsPort)
	return v
}

func unmarshal(v *viper.Viper) (*config, error) {
	conf := &config{}
	if err := v.Unmarshal(conf); err != nil {
		return nil, fmt.Errorf("failed unmarshal configuration. %w", err)
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// LoadConfig reads the configuration. An empty path means defaults and environment only; otherwise the file is
// watched and reloaded, onErrorReloading is called when a changed file is invalid.
func LoadConfig(path string, onErrorReloading func(error)) (*GlobalConfig, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load configuration file. %w", err)
		}
	}
	conf, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	r := &GlobalConfig{
		conf: conf,
		lock: new(sync.RWMutex),
	}
	if path != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			cf, err := unmarshal(v)
			if err != nil {
				if onErrorReloading != nil {
					onErrorReloading(err)
				}
				return
			}
			r.lock.Lock()
			defer r.lock.Unlock()
			r.conf = cf
		})
		v.WatchConfig()
	}
	return r, nil
}
