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

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/numaproj/dataflow"
	dfv1 "github.com/numaproj/dataflow/pkg/apis/dataflow/v1alpha1"
	"github.com/numaproj/dataflow/pkg/cluster"
	"github.com/numaproj/dataflow/pkg/config"
	"github.com/numaproj/dataflow/pkg/job"
	natsclient "github.com/numaproj/dataflow/pkg/shared/clients/nats"
	redisclient "github.com/numaproj/dataflow/pkg/shared/clients/redis"
	"github.com/numaproj/dataflow/pkg/shared/kvs"
	"github.com/numaproj/dataflow/pkg/shared/kvs/inmem"
	"github.com/numaproj/dataflow/pkg/shared/kvs/jetstream"
	"github.com/numaproj/dataflow/pkg/shared/logging"
	"github.com/numaproj/dataflow/pkg/shared/util"
)

func NewRunCommand() *cobra.Command {
	var (
		jobName          string
		configPath       string
		guarantee        string
		snapshotInterval time.Duration
		backupCount      int32
		maxRestarts      int32
		splitBrain       bool
		outputDir        string
		topic            string
	)

	command := &cobra.Command{
		Use:   "run",
		Short: "Run a builtin job until it ends or the process is interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			bj, ok := builtinJobs[jobName]
			if !ok {
				return fmt.Errorf("unknown job %q, available jobs: %s", jobName, strings.Join(builtinJobNames(), ", "))
			}
			g := bj.guarantee
			if guarantee != "" {
				g = dfv1.ProcessingGuarantee(strings.ToUpper(guarantee))
			}
			cfg := dfv1.NewJobConfig(jobName, g).
				WithSnapshotInterval(snapshotInterval).
				WithBackupCount(backupCount).
				WithMaxRestarts(maxRestarts)
			cfg.SplitBrainProtectionEnabled = splitBrain
			if err := cfg.Validate(); err != nil {
				return err
			}

			log := logging.NewLogger().Named(CLIName)
			log.Infow("Starting dataflow", "version", dataflow.GetVersion(), "job", jobName, "guarantee", g)
			if configPath == "" {
				configPath = util.LookupEnvStringOr(dfv1.EnvConfigPath, "")
			}
			gc, err := config.LoadConfig(configPath, func(err error) {
				log.Errorw("Failed to reload the configuration", zap.Error(err))
			})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			env := &jobEnv{
				log:         log,
				outputDir:   outputDir,
				topic:       topic,
				redis:       redisclient.NewRedisClientFromEnv(),
				kafkaConfig: util.LookupEnvStringOr(dfv1.EnvKafkaConfig, ""),
			}
			if brokers := util.LookupEnvStringOr(dfv1.EnvKafkaBrokers, ""); brokers != "" {
				env.brokers = strings.Split(brokers, ",")
			}
			return runJob(logging.WithLogger(ctx, log), gc, bj, cfg, env)
		},
	}
	command.Flags().StringVar(&jobName, "job", "word-count", "Name of the builtin job to run, see the jobs command")
	command.Flags().StringVar(&configPath, "config", "", "Path of the engine configuration file")
	command.Flags().StringVar(&guarantee, "guarantee", "", "Processing guarantee, NONE, AT_LEAST_ONCE or EXACTLY_ONCE, defaults to the one of the job")
	command.Flags().DurationVar(&snapshotInterval, "snapshot-interval", dfv1.DefaultSnapshotInterval, "Interval between two snapshots")
	command.Flags().Int32Var(&backupCount, "backup-count", dfv1.DefaultBackupCount, "Number of members holding a backup of each snapshot")
	command.Flags().Int32Var(&maxRestarts, "max-restarts", dfv1.DefaultMaxRestarts, "Number of restarts before the job is failed")
	command.Flags().BoolVar(&splitBrain, "split-brain-protection", false, "Suspend the job while a quorum of the members is not reachable")
	command.Flags().StringVar(&outputDir, "output-dir", "", "Write the results to files in the directory instead of the log")
	command.Flags().StringVar(&topic, "topic", "words", "Kafka topic read by the kafka jobs")
	return command
}

// runJob runs the job until it ends. The context being done cancels the job, which takes a final snapshot.
func runJob(ctx context.Context, gc *config.GlobalConfig, bj builtinJob, cfg dfv1.JobConfig, env *jobEnv) error {
	log := logging.FromContext(ctx)
	cl := gc.GetCluster()
	members, err := cluster.NewStaticMembership(cl.LocalMember(), cl.Members)
	if err != nil {
		return err
	}
	kv, closeStore, err := newSnapshotStore(ctx, gc.GetSnapshot())
	if err != nil {
		return err
	}
	defer closeStore()

	opts := []job.EngineOption{job.WithExecutionConfig(gc.GetExecution()), job.WithEngineLogger(log)}
	if m := gc.GetMetrics(); m.Enabled {
		opts = append(opts, job.WithMetricsPort(m.Port))
	}
	engine := job.NewEngine(members, kv, opts...)
	env.engine = engine

	// the job outlives ctx so that it can take its final snapshot once cancelled
	jobCtx := logging.WithLogger(context.Background(), log)
	d, cleanup, err := bj.build(jobCtx, env)
	if err != nil {
		return err
	}
	defer cleanup()
	j, err := engine.SubmitDAG(jobCtx, d, cfg)
	if err != nil {
		return err
	}
	log.Infow("Submitted job", zap.String("jobID", j.ID()), zap.String("dag", d.String()))
	select {
	case <-ctx.Done():
		log.Info("Cancelling the job")
		j.Cancel()
	case <-j.Done():
	}
	if err := j.Join(jobCtx); err != nil {
		return err
	}
	log.Infow("Job ended", zap.String("status", string(j.Status())), zap.Int("restarts", j.Restarts()))
	return nil
}

// newSnapshotStore returns the store of the snapshot manifests and a function closing it.
func newSnapshotStore(ctx context.Context, sc config.SnapshotConfig) (kvs.KVStorer, func(), error) {
	switch sc.Store {
	case config.SnapshotStoreJetStream:
		client, err := natsclient.NewNATSClientFromEnv(ctx)
		if err != nil {
			return nil, nil, err
		}
		kv, err := jetstream.NewKVJetStreamKVStore(ctx, sc.Bucket, client, jetstream.WithCreateBucket(1))
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return kv, func() {
			kv.Close()
			client.Close()
		}, nil
	default:
		kv, err := inmem.NewKVInMemKVStore(ctx, sc.Bucket)
		if err != nil {
			return nil, nil, err
		}
		return kv, kv.Close, nil
	}
}
