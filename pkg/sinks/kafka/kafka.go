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

// Package kafka holds a sink producing the items to a kafka topic.
package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/numaproj/dataflow/pkg/datamodel"
	"github.com/numaproj/dataflow/pkg/shared/logging"
	"github.com/numaproj/dataflow/pkg/sinks"
)

// ToKafka produces the items to a kafka topic. Entries are produced with their key, other items without one.
type ToKafka struct {
	topic    string
	brokers  []string
	config   *sarama.Config
	producer sarama.SyncProducer
	encode   func(any) []byte
	log      *zap.SugaredLogger
}

type Option func(*ToKafka)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToKafka) {
		t.log = log
	}
}

// WithProducer uses the given producer instead of connecting to the brokers.
func WithProducer(p sarama.SyncProducer) Option {
	return func(t *ToKafka) {
		t.producer = p
	}
}

// WithEncoder sets the function turning an item into the message value, the default is fmt.Sprint.
func WithEncoder(fn func(any) []byte) Option {
	return func(t *ToKafka) {
		t.encode = fn
	}
}

// NewToKafka returns a kafka sink.
func NewToKafka(brokers []string, topic string, config *sarama.Config, opts ...Option) *ToKafka {
	t := &ToKafka{
		topic:   topic,
		brokers: brokers,
		config:  config,
		encode: func(v any) []byte {
			return []byte(fmt.Sprint(v))
		},
	}
	for _, o := range opts {
		o(t)
	}
	if t.log == nil {
		t.log = logging.NewLogger()
	}
	t.log = t.log.With("sinkType", "kafka").With("topic", topic)
	return t
}

func (t *ToKafka) Name() string {
	return "kafka-" + t.topic
}

func (t *ToKafka) NewWriter(_ context.Context, index, _ int) (sinks.Writer, error) {
	producer := t.producer
	owned := false
	if producer == nil {
		p, err := sarama.NewSyncProducer(t.brokers, t.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka producer, %w", err)
		}
		producer, owned = p, true
	}
	return &kafkaWriter{sink: t, producer: producer, owned: owned, log: t.log.With("instance", index)}, nil
}

type kafkaWriter struct {
	sink     *ToKafka
	producer sarama.SyncProducer
	owned    bool
	pending  []*sarama.ProducerMessage
	log      *zap.SugaredLogger
}

func (w *kafkaWriter) Write(_ context.Context, items []any) error {
	for _, item := range items {
		msg := &sarama.ProducerMessage{Topic: w.sink.topic}
		if e, ok := item.(datamodel.Entry); ok {
			msg.Key = sarama.ByteEncoder(w.sink.encode(e.Key))
			msg.Value = sarama.ByteEncoder(w.sink.encode(e.Value))
		} else {
			msg.Value = sarama.ByteEncoder(w.sink.encode(item))
		}
		w.pending = append(w.pending, msg)
	}
	return nil
}

func (w *kafkaWriter) Flush(context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	if err := w.producer.SendMessages(w.pending); err != nil {
		w.log.Errorw("Failed to produce messages", zap.Int("count", len(w.pending)), zap.Error(err))
		return fmt.Errorf("failed to produce %d messages, %w", len(w.pending), err)
	}
	w.pending = nil
	return nil
}

func (w *kafkaWriter) Close() error {
	if w.owned {
		return w.producer.Close()
	}
	return nil
}
