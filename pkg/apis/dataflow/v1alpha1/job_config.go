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
	"fmt"
	"time"
)

// ProcessingGuarantee is the delivery and consistency level a job commits to.
type ProcessingGuarantee string

const (
	// ProcessingGuaranteeNone takes no snapshots, any failure is terminal.
	ProcessingGuaranteeNone ProcessingGuarantee = "NONE"
	// ProcessingGuaranteeAtLeastOnce takes snapshots without aligning barriers, duplicates are possible after recovery.
	ProcessingGuaranteeAtLeastOnce ProcessingGuarantee = "AT_LEAST_ONCE"
	// ProcessingGuaranteeExactlyOnce aligns barriers on every input of a vertex before saving its state.
	ProcessingGuaranteeExactlyOnce ProcessingGuarantee = "EXACTLY_ONCE"
)

func (g ProcessingGuarantee) String() string {
	return string(g)
}

// IsValid tells whether the guarantee is one of the known values.
func (g ProcessingGuarantee) IsValid() bool {
	switch g {
	case ProcessingGuaranteeNone, ProcessingGuaranteeAtLeastOnce, ProcessingGuaranteeExactlyOnce:
		return true
	default:
		return false
	}
}

// SnapshotsEnabled returns true when the guarantee requires snapshots.
func (g ProcessingGuarantee) SnapshotsEnabled() bool {
	return g == ProcessingGuaranteeAtLeastOnce || g == ProcessingGuaranteeExactlyOnce
}

// JobConfig is the submitter owned configuration of a job. It is immutable for the lifetime of the job.
type JobConfig struct {
	// Name of the job, used in logs and metrics.
	// +optional
	Name string `json:"name,omitempty" mapstructure:"name"`
	// ProcessingGuarantee defaults to NONE.
	// +optional
	ProcessingGuarantee ProcessingGuarantee `json:"processingGuarantee,omitempty" mapstructure:"processingGuarantee"`
	// SnapshotIntervalMillis is the interval between two snapshots.
	// +optional
	SnapshotIntervalMillis *int64 `json:"snapshotIntervalMillis,omitempty" mapstructure:"snapshotIntervalMillis"`
	// BackupCount is how many members hold a redundant copy of each snapshot, in addition to the primary copy.
	// +optional
	BackupCount *int32 `json:"backupCount,omitempty" mapstructure:"backupCount"`
	// SplitBrainProtectionEnabled suspends the job whenever fewer than a quorum of the configured members are reachable.
	// +optional
	SplitBrainProtectionEnabled bool `json:"splitBrainProtectionEnabled,omitempty" mapstructure:"splitBrainProtectionEnabled"`
	// MaxRestarts is the number of automatic restarts before the job is considered failed.
	// +optional
	MaxRestarts *int32 `json:"maxRestarts,omitempty" mapstructure:"maxRestarts"`
}

// NewJobConfig returns a JobConfig with the given guarantee.
func NewJobConfig(name string, guarantee ProcessingGuarantee) JobConfig {
	return JobConfig{Name: name, ProcessingGuarantee: guarantee}
}

// WithSnapshotInterval returns a copy of the config with the snapshot interval set.
func (jc JobConfig) WithSnapshotInterval(d time.Duration) JobConfig {
	ms := d.Milliseconds()
	jc.SnapshotIntervalMillis = &ms
	return jc
}

// WithBackupCount returns a copy of the config with the backup count set.
func (jc JobConfig) WithBackupCount(n int32) JobConfig {
	jc.BackupCount = &n
	return jc
}

// WithMaxRestarts returns a copy of the config with the maximum number of restarts set.
func (jc JobConfig) WithMaxRestarts(n int32) JobConfig {
	jc.MaxRestarts = &n
	return jc
}

func (jc JobConfig) GetProcessingGuarantee() ProcessingGuarantee {
	if jc.ProcessingGuarantee == "" {
		return ProcessingGuaranteeNone
	}
	return jc.ProcessingGuarantee
}

func (jc JobConfig) GetSnapshotInterval() time.Duration {
	if jc.SnapshotIntervalMillis != nil {
		return time.Duration(*jc.SnapshotIntervalMillis) * time.Millisecond
	}
	return DefaultSnapshotInterval
}

func (jc JobConfig) GetBackupCount() int {
	if jc.BackupCount != nil {
		return int(*jc.BackupCount)
	}
	return DefaultBackupCount
}

func (jc JobConfig) GetMaxRestarts() int {
	if jc.MaxRestarts != nil {
		return int(*jc.MaxRestarts)
	}
	return DefaultMaxRestarts
}

// Validate checks the job config.
func (jc JobConfig) Validate() error {
	if jc.ProcessingGuarantee != "" && !jc.ProcessingGuarantee.IsValid() {
		return fmt.Errorf("invalid processing guarantee %q", jc.ProcessingGuarantee)
	}
	if jc.SnapshotIntervalMillis != nil && *jc.SnapshotIntervalMillis <= 0 {
		return fmt.Errorf("snapshotIntervalMillis must be positive, got %d", *jc.SnapshotIntervalMillis)
	}
	if jc.BackupCount != nil && *jc.BackupCount < 0 {
		return fmt.Errorf("backupCount must not be negative, got %d", *jc.BackupCount)
	}
	if jc.MaxRestarts != nil && *jc.MaxRestarts < 0 {
		return fmt.Errorf("maxRestarts must not be negative, got %d", *jc.MaxRestarts)
	}
	return nil
}
