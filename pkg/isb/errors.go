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

package isb

import "fmt"

const BufferFullMessage = "Buffer full!"

// BufferWriteErr is returned per message when it could not be written. A full buffer is transient, the writer
// retries the same message once the consumer has acknowledged a slot.
type BufferWriteErr struct {
	Name    string
	Full    bool
	Message string
}

func (e BufferWriteErr) Error() string {
	return fmt.Sprintf("(%s) %s full:%t", e.Name, e.Message, e.Full)
}

// IsFull returns true if buffer is full.
func (e BufferWriteErr) IsFull() bool {
	return e.Full
}

// MessageAckErr is for acknowledgement errors.
type MessageAckErr struct {
	Name    string
	Offset  Offset
	Message string
}

func (e MessageAckErr) Error() string {
	if e.Offset == nil {
		return fmt.Sprintf("(%s) %s", e.Name, e.Message)
	}
	return fmt.Sprintf("(%s) offset %s: %s", e.Name, e.Offset.String(), e.Message)
}

// BufferReadErr when we cannot read from the buffer.
type BufferReadErr struct {
	Name    string
	Empty   bool
	Message string
}

func (e BufferReadErr) Error() string {
	return fmt.Sprintf("(%s) %s empty:%t", e.Name, e.Message, e.Empty)
}

// IsEmpty returns true if buffer is empty.
func (e BufferReadErr) IsEmpty() bool {
	return e.Empty
}
