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

package v1alpha1

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobConfigDefaults(t *testing.T) {
	jc := JobConfig{}
	assert.Equal(t, ProcessingGuaranteeNone, jc.GetProcessingGuarantee())
	assert.Equal(t, DefaultSnapshotInterval, jc.GetSnapshotInterval())
	assert.Equal(t, DefaultBackupCount, jc.GetBackupCount())
	assert.Equal(t, DefaultMaxRestarts, jc.GetMaxRestarts())
	assert.NoError(t, jc.Validate())
}

func TestJobConfigWithers(t *testing.T) {
	jc := NewJobConfig("trades", ProcessingGuaranteeExactlyOnce).
		WithSnapshotInterval(10 * time.Second).
		WithBackupCount(2).
		WithMaxRestarts(3)
	assert.Equal(t, 10*time.Second, jc.GetSnapshotInterval())
	assert.Equal(t, 2, jc.GetBackupCount())
	assert.Equal(t, 3, jc.GetMaxRestarts())
	assert.True(t, jc.GetProcessingGuarantee().SnapshotsEnabled())
	assert.NoError(t, jc.Validate())
}

func TestJobConfigValidate(t *testing.T) {
	zero := int64(0)
	jc := JobConfig{SnapshotIntervalMillis: &zero}
	assert.Error(t, jc.Validate())

	jc = JobConfig{ProcessingGuarantee: "SOMETIMES"}
	assert.Error(t, jc.Validate())

	jc = NewJobConfig("x", ProcessingGuaranteeNone).WithBackupCount(-1)
	assert.Error(t, jc.Validate())
}

func TestJobStatusIsTerminal(t *testing.T) {
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusTerminated.IsTerminal())
	assert.False(t, JobStatusSuspended.IsTerminal())
	assert.False(t, JobStatusRestarting.IsTerminal())
}
