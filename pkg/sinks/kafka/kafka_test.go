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
	"context"
	"errors"
	"testing"

	mock "github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/dataflow/pkg/datamodel"
)

func TestWriteSuccessToKafka(t *testing.T) {
	conf := mock.NewTestConfig()
	conf.Producer.Return.Successes = true
	producer := mock.NewSyncProducer(t, conf)
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndSucceed()

	sink := NewToKafka(nil, "counts", conf, WithProducer(producer))
	assert.Equal(t, "kafka-counts", sink.Name())
	w, err := sink.NewWriter(context.Background(), 0, 1)
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), []any{datamodel.NewEntry("a", 1), "plain"}))
	require.NoError(t, w.Flush(context.Background()))
	require.NoError(t, w.Close())
	require.NoError(t, producer.Close())
}

func TestWriteFailureToKafka(t *testing.T) {
	conf := mock.NewTestConfig()
	conf.Producer.Return.Successes = true
	producer := mock.NewSyncProducer(t, conf)
	producer.ExpectSendMessageAndFail(errors.New("broker down"))

	w, err := NewToKafka(nil, "counts", conf, WithProducer(producer)).NewWriter(context.Background(), 0, 1)
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), []any{"x"}))
	assert.Error(t, w.Flush(context.Background()))
	require.NoError(t, producer.Close())
}
