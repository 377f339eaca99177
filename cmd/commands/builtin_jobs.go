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
	"math/rand"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/numaproj/dataflow/pkg/aggregate"
	dfv1 "github.com/numaproj/dataflow/pkg/apis/dataflow/v1alpha1"
	"github.com/numaproj/dataflow/pkg/compiler"
	"github.com/numaproj/dataflow/pkg/dag"
	"github.com/numaproj/dataflow/pkg/datamodel"
	"github.com/numaproj/dataflow/pkg/job"
	"github.com/numaproj/dataflow/pkg/join"
	"github.com/numaproj/dataflow/pkg/pipeline"
	"github.com/numaproj/dataflow/pkg/processor"
	redisclient "github.com/numaproj/dataflow/pkg/shared/clients/redis"
	"github.com/numaproj/dataflow/pkg/shared/kvs/inmem"
	"github.com/numaproj/dataflow/pkg/shared/util"
	"github.com/numaproj/dataflow/pkg/sideinput"
	"github.com/numaproj/dataflow/pkg/sinks"
	kafkasink "github.com/numaproj/dataflow/pkg/sinks/kafka"
	"github.com/numaproj/dataflow/pkg/sinks/logger"
	redissink "github.com/numaproj/dataflow/pkg/sinks/redis"
	"github.com/numaproj/dataflow/pkg/sources"
	kafkasource "github.com/numaproj/dataflow/pkg/sources/kafka"
	"github.com/numaproj/dataflow/pkg/watermark"
	"github.com/numaproj/dataflow/pkg/window"
)

// jobEnv is what the builtin jobs are built from.
type jobEnv struct {
	engine    *job.Engine
	log       *zap.SugaredLogger
	outputDir string
	topic     string
	brokers   []string
	// kafkaConfig is the yaml overriding the sarama defaults.
	kafkaConfig string
	redis       *redisclient.RedisClient
}

// builtinJob builds a DAG and returns a function releasing what the DAG uses.
type builtinJob struct {
	description string
	guarantee   dfv1.ProcessingGuarantee
	build       func(ctx context.Context, env *jobEnv) (*dag.DAG, func(), error)
}

var builtinJobs = map[string]builtinJob{
	"word-count": {
		description: "Counts the words of a few lines of text",
		guarantee:   dfv1.ProcessingGuaranteeNone,
		build:       buildWordCount,
	},
	"stock-window": {
		description: "Sliding average price per ticker of generated trades",
		guarantee:   dfv1.ProcessingGuaranteeExactlyOnce,
		build:       buildStockWindow,
	},
	"stock-window-dag": {
		description: "The stock-window job written with the core DAG API",
		guarantee:   dfv1.ProcessingGuaranteeExactlyOnce,
		build:       buildStockWindowDAG,
	},
	"enrich": {
		description: "Enriches generated trades with company names looked up in a side input store",
		guarantee:   dfv1.ProcessingGuaranteeAtLeastOnce,
		build:       buildEnrich,
	},
	"enrich-join": {
		description: "Enriches a batch of trades with company names using a hash join",
		guarantee:   dfv1.ProcessingGuaranteeNone,
		build:       buildEnrichJoin,
	},
	"kafka-word-count": {
		description: "Rolling word count from a kafka topic to the <topic>-counts topic",
		guarantee:   dfv1.ProcessingGuaranteeAtLeastOnce,
		build:       buildKafkaWordCount,
	},
}

func builtinJobNames() []string {
	names := make([]string, 0, len(builtinJobs))
	for name := range builtinJobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func noop() {}

func compile(ctx context.Context, env *jobEnv, p *pipeline.Pipeline) (*dag.DAG, error) {
	return compiler.Compile(ctx, env.engine.EngineContext(), p)
}

// outputSink returns where a job writes its results: files, a redis hash or the log.
func outputSink(env *jobEnv, name string) sinks.Sink {
	switch {
	case env.outputDir != "":
		return sinks.NewFileSink(filepath.Join(env.outputDir, name), nil)
	case env.redis != nil:
		return redissink.NewToRedis(env.redis, name, nil)
	default:
		return logger.NewToLog(name, logger.WithLogger(env.log))
	}
}

var lines = []any{
	"It was the best of times, it was the worst of times,",
	"it was the age of wisdom, it was the age of foolishness,",
	"it was the epoch of belief, it was the epoch of incredulity,",
	"it was the season of Light, it was the season of Darkness,",
}

func words(v any) ([]any, error) {
	var out []any
	for _, w := range strings.FieldsFunc(strings.ToLower(v.(string)), func(r rune) bool {
		return !('a' <= r && r <= 'z')
	}) {
		out = append(out, w)
	}
	return out, nil
}

func buildWordCount(ctx context.Context, env *jobEnv) (*dag.DAG, func(), error) {
	p := pipeline.New()
	p.ReadFrom(sources.NewListSource("lines", lines)).
		FlatMap(words).
		Filter(func(v any) (bool, error) { return v.(string) != "", nil }).
		GroupingKey("word", func(v any) any { return v }).
		Aggregate(aggregate.Counting()).
		WriteTo(outputSink(env, "word-count"))
	d, err := compile(ctx, env, p)
	return d, noop, err
}

// trade is the event of the stock jobs.
type trade struct {
	Ticker   string
	Price    float64
	Quantity int64
	Time     int64
}

var companies = map[string]string{
	"AAPL": "Apple",
	"AMZN": "Amazon",
	"GOOG": "Alphabet",
	"MSFT": "Microsoft",
	"NVDA": "Nvidia",
}

func tickers() []string {
	out := make([]string, 0, len(companies))
	for t := range companies {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func tradeTicker(v any) any {
	return v.(trade).Ticker
}

func tradeTime(v any) time.Time {
	return time.UnixMilli(v.(trade).Time)
}

func newTrade(r *rand.Rand, ts []string, now time.Time) trade {
	return trade{
		Ticker:   ts[r.Intn(len(ts))],
		Price:    100 + r.Float64()*10,
		Quantity: 1 + r.Int63n(100),
		Time:     now.UnixMilli(),
	}
}

// tradeGenerator appends a trade to the journal every millisecond until stopped. Stopping it seals the journal.
func tradeGenerator(ctx context.Context, journal *sources.Journal) func() {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		ts := tickers()
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				t := newTrade(r, ts, now)
				if _, _, err := journal.Append(t.Ticker, t, now); err != nil {
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		wg.Wait()
		journal.Seal()
	}
}

func averagePrice() aggregate.Operation {
	return aggregate.Averaging(func(v any) float64 { return v.(trade).Price })
}

func stockWindow() window.Definition {
	return window.Sliding(time.Second, 100*time.Millisecond)
}

func buildStockWindow(ctx context.Context, env *jobEnv) (*dag.DAG, func(), error) {
	journal := sources.NewJournal("trades", 4)
	p := pipeline.New()
	p.ReadFrom(journal.Source()).
		WithTimestamps(tradeTime, 100*time.Millisecond).
		GroupingKey("ticker", tradeTicker).
		Window(stockWindow()).
		Aggregate(averagePrice()).
		WriteTo(outputSink(env, "stock-window"))
	d, err := compile(ctx, env, p)
	if err != nil {
		return nil, nil, err
	}
	return d, tradeGenerator(ctx, journal), nil
}

// buildStockWindowDAG builds the two stage window aggregation by hand: frames are accumulated on the instance
// reading the trades, then combined into windows on the instance owning the ticker.
func buildStockWindowDAG(ctx context.Context, env *jobEnv) (*dag.DAG, func(), error) {
	journal := sources.NewJournal("trades", 4)
	op, def := averagePrice(), stockWindow()
	d := dag.New()
	vertices := []*dag.Vertex{
		dag.NewSourceVertex("trades", journal.Source(), watermark.WithTimestamps(tradeTime, 100*time.Millisecond)),
		dag.NewVertex("accumulate", processor.NewFrameAccumulator([]processor.KeyFn{tradeTicker}, op, def, watermark.LateDrop())).
			RequireKey(0, "ticker"),
		dag.NewVertex("combine", processor.NewSlidingCombiner(op, def, nil)),
		dag.NewVertex("sink", processor.NewSinkWriter(outputSink(env, "stock-window-dag"))).WithParallelism(1),
	}
	for _, v := range vertices {
		if err := d.AddVertex(v); err != nil {
			return nil, nil, err
		}
	}
	edges := []dag.Edge{
		dag.Between("trades", "accumulate").PartitionedBy("ticker", tradeTicker),
		dag.Between("accumulate", "combine").
			PartitionedBy("frame", func(v any) any { return v.(processor.FramePartial).Key }).
			Distribute(),
		dag.Between("combine", "sink"),
	}
	for _, e := range edges {
		if err := d.Connect(e); err != nil {
			return nil, nil, err
		}
	}
	if err := d.Validate(); err != nil {
		return nil, nil, err
	}
	return d, tradeGenerator(ctx, journal), nil
}

func buildEnrich(ctx context.Context, env *jobEnv) (*dag.DAG, func(), error) {
	kv, err := inmem.NewKVInMemKVStore(ctx, "companies")
	if err != nil {
		return nil, nil, err
	}
	names := sideinput.NewKVStore[string](kv)
	for ticker, name := range companies {
		if err := names.Put(ctx, ticker, name); err != nil {
			kv.Close()
			return nil, nil, err
		}
	}
	cache, err := sideinput.NewNearCache(names, 1024)
	if err != nil {
		kv.Close()
		return nil, nil, err
	}
	cacheCtx, stopCache := context.WithCancel(ctx)
	go cache.Invalidate(cacheCtx, kv)

	journal := sources.NewJournal("trades", 4)
	p := pipeline.New()
	p.ReadFrom(journal.Source()).
		GroupingKey("ticker", tradeTicker).
		MapUsingStore(cache, func(item, value any) (any, error) {
			t := item.(trade)
			return datamodel.NewEntry(t.Ticker, fmt.Sprintf("%v %d@%.2f", value, t.Quantity, t.Price)), nil
		}).
		WriteTo(outputSink(env, "enrich"))
	d, err := compile(ctx, env, p)
	if err != nil {
		stopCache()
		kv.Close()
		return nil, nil, err
	}
	stopGenerator := tradeGenerator(ctx, journal)
	return d, func() {
		stopGenerator()
		stopCache()
		kv.Close()
	}, nil
}

func buildEnrichJoin(ctx context.Context, env *jobEnv) (*dag.DAG, func(), error) {
	r := rand.New(rand.NewSource(1))
	ts := tickers()
	start := time.Now()
	trades := make([]any, 0, 1000)
	for i := 0; i < 1000; i++ {
		trades = append(trades, newTrade(r, ts, start.Add(time.Duration(i)*time.Millisecond)))
	}
	p := pipeline.New()
	p.ReadFrom(sources.NewListSource("trades", trades)).
		HashJoin(p.ReadFrom(sources.NewMapEntriesSource("companies", companies)),
			join.OnKeys(tradeTicker, func(v any) any { return v.(datamodel.Entry).Key }).
				Projecting(func(v any) any { return v.(datamodel.Entry).Value }),
			func(primary, company any) any {
				t := primary.(trade)
				return datamodel.NewEntry(fmt.Sprintf("%s-%d", t.Ticker, t.Time), fmt.Sprintf("%v %d@%.2f", company, t.Quantity, t.Price))
			}).
		WriteTo(outputSink(env, "enrich-join"))
	d, err := compile(ctx, env, p)
	return d, noop, err
}

func buildKafkaWordCount(ctx context.Context, env *jobEnv) (*dag.DAG, func(), error) {
	if len(env.brokers) == 0 {
		return nil, nil, fmt.Errorf("the kafka brokers are not set, set %s", dfv1.EnvKafkaBrokers)
	}
	kafkaConfig, err := util.NewKafkaConfig(env.kafkaConfig)
	if err != nil {
		return nil, nil, err
	}

	p := pipeline.New()
	p.ReadFrom(kafkasource.NewKafkaSource(env.brokers, env.topic, kafkaConfig, kafkasource.WithLogger(env.log))).
		FlatMap(words).
		GroupingKey("word", func(v any) any { return v }).
		RollingAggregate(aggregate.Counting()).
		WriteTo(kafkasink.NewToKafka(env.brokers, env.topic+"-counts", kafkaConfig, kafkasink.WithLogger(env.log),
			kafkasink.WithEncoder(func(v any) []byte {
				e := v.(datamodel.Entry)
				return []byte(fmt.Sprintf("%v=%v", e.Key, e.Value))
			})))
	d, err := compile(ctx, env, p)
	return d, noop, err
}
