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

package kafka

import (
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type Option func(*kafkaSource)

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *kafkaSource) {
		o.logger = l
	}
}

// WithConsumer uses the given consumer instead of connecting to the brokers.
func WithConsumer(c sarama.Consumer) Option {
	return func(o *kafkaSource) {
		o.consumer = c
	}
}

// WithDecoder sets the function turning a kafka message into an item, the default emits the value bytes as a string.
func WithDecoder(fn func(*sarama.ConsumerMessage) any) Option {
	return func(o *kafkaSource) {
		o.decode = fn
	}
}

// WithReadTimeOut sets how long a read waits for the first message.
func WithReadTimeOut(t time.Duration) Option {
	return func(o *kafkaSource) {
		o.readTimeout = t
	}
}
