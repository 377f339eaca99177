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

package watermark

import (
	"time"

	"github.com/numaproj/dataflow/pkg/metrics"
)

// LateHandler receives the events behind the watermark.
type LateHandler func(item any, eventTime time.Time)

// LatePolicy decides what happens to late events. The zero value drops them.
type LatePolicy struct {
	sideOutput LateHandler
}

// LateDrop drops the late events, they are counted.
func LateDrop() LatePolicy {
	return LatePolicy{}
}

// LateSideOutput hands the late events to the handler.
func LateSideOutput(h LateHandler) LatePolicy {
	return LatePolicy{sideOutput: h}
}

// Name returns the metrics label of the policy.
func (p LatePolicy) Name() string {
	if p.sideOutput != nil {
		return "side-output"
	}
	return "drop"
}

// Handle applies the policy to a late event.
func (p LatePolicy) Handle(job, vertex string, item any, eventTime time.Time) {
	metrics.LateEventsCount.WithLabelValues(job, vertex, p.Name()).Inc()
	if p.sideOutput != nil {
		p.sideOutput(item, eventTime)
	}
}
