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

// Package logger holds a sink printing the items to the log.
package logger

import (
	"context"

	"go.uber.org/zap"

	"github.com/numaproj/dataflow/pkg/shared/logging"
	"github.com/numaproj/dataflow/pkg/sinks"
)

// ToLog prints the items to a logger.
type ToLog struct {
	name   string
	logger *zap.SugaredLogger
}

type Option func(*ToLog)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToLog) {
		t.logger = log
	}
}

// NewToLog returns a logger sink.
func NewToLog(name string, opts ...Option) *ToLog {
	t := &ToLog{name: name}
	for _, o := range opts {
		o(t)
	}
	if t.logger == nil {
		t.logger = logging.NewLogger()
	}
	return t
}

func (t *ToLog) Name() string {
	return t.name
}

func (t *ToLog) NewWriter(_ context.Context, index, _ int) (sinks.Writer, error) {
	return &logWriter{logger: t.logger.With("sink", t.name, "instance", index)}, nil
}

type logWriter struct {
	logger *zap.SugaredLogger
}

func (w *logWriter) Write(_ context.Context, items []any) error {
	for _, item := range items {
		w.logger.Infow("Sink", zap.Any("item", item))
	}
	return nil
}

func (w *logWriter) Flush(context.Context) error {
	return nil
}

func (w *logWriter) Close() error {
	return nil
}
