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

package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/numaproj/dataflow/pkg/shared/kvs"
)

const latestSuffix = "latest"

// Manifest describes a committed snapshot. The states live on the replica members, the manifest in a KV store.
type Manifest struct {
	Job         string                    `json:"job"`
	ID          int64                     `json:"id"`
	CommittedAt time.Time                 `json:"committedAt"`
	Replicas    []string                  `json:"replicas"`
	Instances   int                       `json:"instances"`
	Entries     int                       `json:"entries"`
	Completed   int                       `json:"completed"`
	Sources     map[string]SourcePosition `json:"sources,omitempty"`
}

// ManifestStore reads and writes the manifests of the jobs. The manifest of snapshot id of job is under "<job>.<id>",
// the latest one is also under "<job>.latest".
type ManifestStore struct {
	kv kvs.KVStorer
}

func NewManifestStore(kv kvs.KVStorer) *ManifestStore {
	return &ManifestStore{kv: kv}
}

func manifestKey(job string, id int64) string {
	return job + "." + strconv.FormatInt(id, 10)
}

// Save writes the manifest and makes it the latest of its job.
func (s *ManifestStore) Save(ctx context.Context, m *Manifest) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal the manifest of snapshot %d, %w", m.ID, err)
	}
	if err := s.kv.PutKV(ctx, manifestKey(m.Job, m.ID), b); err != nil {
		return fmt.Errorf("failed to save the manifest of snapshot %d, %w", m.ID, err)
	}
	if err := s.kv.PutKV(ctx, m.Job+"."+latestSuffix, b); err != nil {
		return fmt.Errorf("failed to save the latest manifest of job %q, %w", m.Job, err)
	}
	return nil
}

// Latest returns the latest manifest of the job, nil if the job never committed a snapshot.
func (s *ManifestStore) Latest(ctx context.Context, job string) (*Manifest, error) {
	return s.get(ctx, job+"."+latestSuffix)
}

// Get returns the manifest of a snapshot, nil if it is not found.
func (s *ManifestStore) Get(ctx context.Context, job string, id int64) (*Manifest, error) {
	return s.get(ctx, manifestKey(job, id))
}

func (s *ManifestStore) get(ctx context.Context, key string) (*Manifest, error) {
	b, err := s.kv.GetValue(ctx, key)
	if err != nil {
		if errors.Is(err, kvs.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read manifest %q, %w", key, err)
	}
	m := &Manifest{}
	if err := json.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest %q, %w", key, err)
	}
	return m, nil
}

// IDs returns the ids of the stored snapshots of the job, ascending.
func (s *ManifestStore) IDs(ctx context.Context, job string) ([]int64, error) {
	keys, err := s.kv.GetAllKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list the manifests, %w", err)
	}
	var ids []int64
	for _, k := range keys {
		rest, ok := strings.CutPrefix(k, job+".")
		if !ok || rest == latestSuffix {
			continue
		}
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// DeleteLatest removes the latest pointer of the job.
func (s *ManifestStore) DeleteLatest(ctx context.Context, job string) error {
	if err := s.kv.DeleteKey(ctx, job+"."+latestSuffix); err != nil && !errors.Is(err, kvs.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete the latest manifest of job %q, %w", job, err)
	}
	return nil
}

// Delete removes the manifest of a snapshot. A missing manifest is not an error.
func (s *ManifestStore) Delete(ctx context.Context, job string, id int64) error {
	if err := s.kv.DeleteKey(ctx, manifestKey(job, id)); err != nil && !errors.Is(err, kvs.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete the manifest of snapshot %d, %w", id, err)
	}
	return nil
}
