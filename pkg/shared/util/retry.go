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

package util

import (
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// DefaultRetryBackoff is used to restart a failed job.
var DefaultRetryBackoff = wait.Backoff{
	Steps:    10,
	Duration: 100 * time.Millisecond,
	Factor:   2.0,
	Jitter:   0.1,
	Cap:      10 * time.Second,
}

// BufferFullBackoff is used by a writer stalled on a full edge buffer. Once the steps are exhausted the
// writer keeps retrying at the capped duration until its context is done.
var BufferFullBackoff = wait.Backoff{
	Steps:    20,
	Duration: 50 * time.Microsecond,
	Factor:   1.5,
	Jitter:   0.1,
	Cap:      5 * time.Millisecond,
}
