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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelVersion       = "version"
	LabelPlatform      = "platform"
	LabelJob           = "job"
	LabelVertex        = "vertex"
	LabelInstanceIndex = "instance"
	LabelBuffer        = "buffer"
	LabelPolicy        = "policy"
	LabelStatus        = "status"
	LabelReason        = "reason"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "A metric with a constant value '1', labeled by binary version and platform",
	}, []string{LabelVersion, LabelPlatform})
)

// Tasklet metrics
var (
	// ReadMessagesCount is used to indicate the number of data messages read
	ReadMessagesCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "tasklet",
		Name:      "read_total",
		Help:      "Total number of data messages read",
	}, []string{LabelJob, LabelVertex, LabelInstanceIndex})

	// WriteMessagesCount is used to indicate the number of messages written to the outgoing buffers
	WriteMessagesCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "tasklet",
		Name:      "write_total",
		Help:      "Total number of data messages written",
	}, []string{LabelJob, LabelVertex, LabelInstanceIndex})

	// WriteRetriesCount counts the writes retried because the buffer was full
	WriteRetriesCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "tasklet",
		Name:      "write_full_retries_total",
		Help:      "Total number of writes retried on a full buffer",
	}, []string{LabelJob, LabelVertex, LabelInstanceIndex})

	// UserFunctionErrorsCount counts the failures raised by user functions
	UserFunctionErrorsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "tasklet",
		Name:      "user_function_errors_total",
		Help:      "Total number of user function failures",
	}, []string{LabelJob, LabelVertex})

	// PendingMessages is the number of unacknowledged messages of a buffer
	PendingMessages = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "buffer",
		Name:      "pending_messages",
		Help:      "Number of pending messages of a buffer",
	}, []string{LabelJob, LabelBuffer})
)

// Watermark and window metrics
var (
	// LateEventsCount counts the events behind the watermark
	LateEventsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "watermark",
		Name:      "late_events_total",
		Help:      "Total number of late events, labeled by the late policy applied",
	}, []string{LabelJob, LabelVertex, LabelPolicy})

	// CurrentWatermark is the last watermark emitted by a vertex instance
	CurrentWatermark = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "watermark",
		Name:      "current_millis",
		Help:      "Watermark emitted by a vertex instance in unix milliseconds",
	}, []string{LabelJob, LabelVertex, LabelInstanceIndex})

	// WindowResultsCount counts the emitted window results
	WindowResultsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "window",
		Name:      "results_total",
		Help:      "Total number of window results emitted",
	}, []string{LabelJob, LabelVertex})
)

// Job and snapshot metrics
var (
	// SnapshotsCount counts the snapshots by outcome
	SnapshotsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "snapshot",
		Name:      "total",
		Help:      "Total number of snapshots, labeled by status",
	}, []string{LabelJob, LabelStatus})

	// SnapshotDuration observes the time from the barrier injection to the commit
	SnapshotDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: "snapshot",
		Name:      "duration_seconds",
		Help:      "Snapshot duration from request to commit",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
	}, []string{LabelJob})

	// SnapshotEntries is the number of state entries of the latest committed snapshot
	SnapshotEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "snapshot",
		Name:      "entries",
		Help:      "Number of state entries of the latest committed snapshot",
	}, []string{LabelJob})

	// JobRestartsCount counts the job restarts
	JobRestartsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "job",
		Name:      "restarts_total",
		Help:      "Total number of job restarts, labeled by reason",
	}, []string{LabelJob, LabelReason})

	// JobStatus is 1 for the current status of a job and 0 otherwise
	JobStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: "job",
		Name:      "status",
		Help:      "A metric with a value of 1 for the current job status",
	}, []string{LabelJob, LabelStatus})
)
