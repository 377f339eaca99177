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

// JobStatus is the phase of a running job.
type JobStatus string

const (
	JobStatusNotRunning   JobStatus = "NOT_RUNNING"
	JobStatusStarting     JobStatus = "STARTING"
	JobStatusRunning      JobStatus = "RUNNING"
	JobStatusSnapshotting JobStatus = "SNAPSHOTTING"
	JobStatusRestarting   JobStatus = "RESTARTING"
	JobStatusSuspended    JobStatus = "SUSPENDED"
	JobStatusFailed       JobStatus = "FAILED"
	JobStatusCompleted    JobStatus = "COMPLETED"
	JobStatusTerminated   JobStatus = "TERMINATED"
)

func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the job can not leave the status any more.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusFailed, JobStatusCompleted, JobStatusTerminated:
		return true
	default:
		return false
	}
}
