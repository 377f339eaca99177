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

package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Commands(t *testing.T) {
	t.Run("root help", func(t *testing.T) {
		b := bytes.NewBufferString("")
		rootCmd.SetOut(b)
		rootCmd.SetArgs([]string{"help"})
		require.NoError(t, rootCmd.Execute())
		assert.Contains(t, b.String(), "Available Commands")
		assert.Contains(t, b.String(), "run")
	})

	t.Run("jobs", func(t *testing.T) {
		b := bytes.NewBufferString("")
		cmd := NewJobsCommand()
		cmd.SetOut(b)
		require.NoError(t, cmd.Execute())
		for _, name := range builtinJobNames() {
			assert.Contains(t, b.String(), name)
		}
		assert.Contains(t, b.String(), "EXACTLY_ONCE")
	})

	t.Run("version", func(t *testing.T) {
		b := bytes.NewBufferString("")
		cmd := NewVersionCommand()
		cmd.SetOut(b)
		require.NoError(t, cmd.Execute())
		assert.Contains(t, b.String(), "Version: ")
	})

	t.Run("run flags", func(t *testing.T) {
		cmd := NewRunCommand()
		assert.True(t, cmd.HasLocalFlags())
		assert.Equal(t, "string", cmd.Flag("job").Value.Type())
		assert.Equal(t, "duration", cmd.Flag("snapshot-interval").Value.Type())
		assert.Equal(t, "bool", cmd.Flag("split-brain-protection").Value.Type())
	})

	t.Run("run unknown job", func(t *testing.T) {
		cmd := NewRunCommand()
		cmd.SetArgs([]string{"--job=nope"})
		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown job")
	})

	t.Run("run invalid guarantee", func(t *testing.T) {
		cmd := NewRunCommand()
		cmd.SetArgs([]string{"--guarantee=sometimes"})
		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid processing guarantee")
	})

	t.Run("run kafka job without brokers", func(t *testing.T) {
		t.Setenv("DATAFLOW_KAFKA_BROKERS", "")
		cmd := NewRunCommand()
		cmd.SetArgs([]string{"--job=kafka-word-count"})
		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kafka brokers")
	})

	t.Run("run word count", func(t *testing.T) {
		dir := t.TempDir()
		cmd := NewRunCommand()
		cmd.SetArgs([]string{"--job=word-count", "--output-dir=" + dir})
		require.NoError(t, cmd.Execute())
		files, err := filepath.Glob(filepath.Join(dir, "word-count", "part-*"))
		require.NoError(t, err)
		require.NotEmpty(t, files)
		var out strings.Builder
		for _, f := range files {
			b, err := os.ReadFile(f)
			require.NoError(t, err)
			out.Write(b)
		}
		assert.Contains(t, out.String(), "times=2\n")
		assert.Contains(t, out.String(), "it=8\n")
	})
}
