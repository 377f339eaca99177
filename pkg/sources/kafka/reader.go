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

// Package kafka reads a kafka topic as a partitioned journal. Each source instance consumes a fixed subset of the
// topic partitions and tracks the next offset of each of them itself, no consumer group is involved.
package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/numaproj/dataflow/pkg/shared/logging"
	"github.com/numaproj/dataflow/pkg/sources"
)

const readBufferSize = 100

type kafkaSource struct {
	topic       string
	brokers     []string
	config      *sarama.Config
	consumer    sarama.Consumer
	decode      func(*sarama.ConsumerMessage) any
	readTimeout time.Duration
	logger      *zap.SugaredLogger
	lock        sync.Mutex
	refs        int
	// injected consumers are closed by their owner
	ownsConsumer bool
}

// NewKafkaSource returns an unbounded source reading the topic.
func NewKafkaSource(brokers []string, topic string, config *sarama.Config, opts ...Option) sources.Source {
	s := &kafkaSource{
		topic:       topic,
		brokers:     brokers,
		config:      config,
		readTimeout: 10 * time.Millisecond,
		decode: func(m *sarama.ConsumerMessage) any {
			return string(m.Value)
		},
		logger: logging.NewLogger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *kafkaSource) Name() string {
	return "kafka-" + s.topic
}

func (s *kafkaSource) Bounded() bool {
	return false
}

// acquire returns the consumer shared by the readers, it connects on first use.
func (s *kafkaSource) acquire() (sarama.Consumer, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.consumer == nil {
		c, err := sarama.NewConsumer(s.brokers, s.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka consumer, %w", err)
		}
		s.consumer = c
		s.ownsConsumer = true
	}
	s.refs++
	return s.consumer, nil
}

func (s *kafkaSource) release() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.refs--
	if s.refs > 0 || !s.ownsConsumer || s.consumer == nil {
		return nil
	}
	err := s.consumer.Close()
	s.consumer = nil
	return err
}

func (s *kafkaSource) NewReader(_ context.Context, index, total int) (sources.Reader, error) {
	consumer, err := s.acquire()
	if err != nil {
		return nil, err
	}
	partitions, err := consumer.Partitions(s.topic)
	if err != nil {
		_ = s.release()
		return nil, fmt.Errorf("failed to list the partitions of topic %q, %w", s.topic, err)
	}
	r := &reader{
		source:    s,
		consumer:  consumer,
		offsets:   make(sources.Offsets),
		consumers: make(map[int32]sarama.PartitionConsumer),
		logger:    s.logger.With("topic", s.topic, "instance", index),
	}
	initial := sarama.OffsetOldest
	if s.config != nil {
		initial = s.config.Consumer.Offsets.Initial
	}
	for i, p := range partitions {
		if i%total == index {
			r.offsets[p] = initial
		}
	}
	if err := r.open(); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

type reader struct {
	source    *kafkaSource
	consumer  sarama.Consumer
	offsets   sources.Offsets
	consumers map[int32]sarama.PartitionConsumer
	// messages merges the partition consumers, each partition keeps its order
	messages chan *sarama.ConsumerMessage
	stop     chan struct{}
	wg       sync.WaitGroup
	logger   *zap.SugaredLogger
}

func (r *reader) open() error {
	r.messages = make(chan *sarama.ConsumerMessage, readBufferSize)
	r.stop = make(chan struct{})
	for p, offset := range r.offsets {
		pc, err := r.consumer.ConsumePartition(r.source.topic, p, offset)
		if err != nil {
			return fmt.Errorf("failed to consume partition %d at offset %d, %w", p, offset, err)
		}
		r.consumers[p] = pc
		r.wg.Add(1)
		go r.forward(p, pc, r.messages, r.stop)
	}
	return nil
}

// forward copies the messages of a partition consumer into the merged channel until the reader stops.
func (r *reader) forward(p int32, pc sarama.PartitionConsumer, out chan<- *sarama.ConsumerMessage, stop <-chan struct{}) {
	defer r.wg.Done()
	messages, errs := pc.Messages(), pc.Errors()
	for messages != nil {
		select {
		case m, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			select {
			case out <- m:
			case <-stop:
				return
			}
		case cerr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.logger.Errorw("Kafka partition consumer error", zap.Int32("partition", p), zap.Error(cerr.Err))
		case <-stop:
			return
		}
	}
}

func (r *reader) closeConsumers() error {
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
	var err error
	for p, pc := range r.consumers {
		err = multierr.Append(err, pc.Close())
		delete(r.consumers, p)
	}
	r.wg.Wait()
	return err
}

// Read waits at most the read timeout for a message of any partition, then drains what is already fetched.
func (r *reader) Read(ctx context.Context, max int) ([]sources.Record, bool, error) {
	var records []sources.Record
	timeout := time.NewTimer(r.source.readTimeout)
	defer timeout.Stop()
	for len(records) < max {
		if len(records) > 0 {
			select {
			case m := <-r.messages:
				records = r.append(records, m)
				continue
			default:
				return records, false, nil
			}
		}
		select {
		case m := <-r.messages:
			records = r.append(records, m)
		case <-timeout.C:
			r.logger.Debugw("Timed out waiting for messages to read", zap.Duration("waited", r.source.readTimeout))
			return nil, false, nil
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	return records, false, nil
}

func (r *reader) append(records []sources.Record, m *sarama.ConsumerMessage) []sources.Record {
	r.offsets[m.Partition] = m.Offset + 1
	return append(records, sources.Record{Value: r.source.decode(m), Timestamp: m.Timestamp})
}

func (r *reader) Position() sources.Offsets {
	return r.offsets.Copy()
}

func (r *reader) Seek(offsets sources.Offsets) error {
	if err := r.closeConsumers(); err != nil {
		r.logger.Warnw("Failed to close the partition consumers", zap.Error(err))
	}
	for p := range r.offsets {
		if o, ok := offsets[p]; ok {
			r.offsets[p] = o
		}
	}
	return r.open()
}

func (r *reader) Close() error {
	return multierr.Append(r.closeConsumers(), r.source.release())
}
