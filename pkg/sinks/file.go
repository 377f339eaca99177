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

package sinks

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSink writes the items as UTF-8 lines, one file per sink instance. Existing files are truncated.
type FileSink struct {
	dir    string
	format func(any) string
}

// NewFileSink returns a sink writing into the directory, format defaults to fmt.Sprint.
func NewFileSink(dir string, format func(any) string) *FileSink {
	if format == nil {
		format = func(v any) string { return fmt.Sprint(v) }
	}
	return &FileSink{dir: dir, format: format}
}

func (s *FileSink) Name() string {
	return "file-" + filepath.Base(s.dir)
}

// FileName returns the file written by the instance.
func (s *FileSink) FileName(index int) string {
	return filepath.Join(s.dir, fmt.Sprintf("part-%05d", index))
}

func (s *FileSink) NewWriter(_ context.Context, index, _ int) (Writer, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %q, %w", s.dir, err)
	}
	f, err := os.OpenFile(s.FileName(index), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open the sink file, %w", err)
	}
	return &fileWriter{file: f, buf: bufio.NewWriter(f), format: s.format}, nil
}

type fileWriter struct {
	file   *os.File
	buf    *bufio.Writer
	format func(any) string
}

func (w *fileWriter) Write(_ context.Context, items []any) error {
	for _, item := range items {
		line := strings.ToValidUTF8(w.format(item), "�")
		if _, err := w.buf.WriteString(line); err != nil {
			return err
		}
		if err := w.buf.WriteByte('\n'); err != nil {
			return err
		}
	}
	return nil
}

func (w *fileWriter) Flush(context.Context) error {
	return w.buf.Flush()
}

func (w *fileWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}
