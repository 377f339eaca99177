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

import (
	"time"
)

// MessageType represents the message type of the payload.
type MessageType int16

const (
	Data    MessageType = 1 << iota // Data payload
	WMB                             // Watermark
	Barrier                         // Snapshot barrier
	EOS                             // End of stream
)

func (mt MessageType) String() string {
	switch mt {
	case Data:
		return "Data"
	case WMB:
		return "WMB"
	case Barrier:
		return "Barrier"
	case EOS:
		return "EOS"
	default:
		return "Unknown"
	}
}

// MessageInfo is the message information window of the payload.
// The contents inside the MessageInfo can be interpreted differently based on the MessageType.
type MessageInfo struct {
	// EventTime when
	// MessageType == Data represents the event time of the message
	// MessageType == WMB represents the watermark carried by the message
	// otherwise the value is ignored
	EventTime time.Time
	// IsLate when
	// MessageType == Data, IsLate is used to indicate if the message is a late data (assignment happens at source)
	// otherwise the value is ignored
	IsLate bool
}

// Header is the header of the message
type Header struct {
	MessageInfo
	// Kind indicates the kind of Message
	Kind MessageType
	// ID identifies the message, usually populated from the source offset.
	ID string
	// SnapshotID is set only for Barrier messages.
	SnapshotID int64
}

// Body is the body of the message
type Body struct {
	Payload any
}

// Message is inter step message
type Message struct {
	Header
	Body
}

// ReadMessage is the message read from the buffer.
type ReadMessage struct {
	Message
	ReadOffset Offset
}

// ToReadMessage converts Message to a ReadMessage by providing the offset.
func (m *Message) ToReadMessage(ot Offset) *ReadMessage {
	return &ReadMessage{Message: *m, ReadOffset: ot}
}

// NewDataMessage returns a data message carrying the payload.
func NewDataMessage(payload any, eventTime time.Time) Message {
	return Message{
		Header: Header{MessageInfo: MessageInfo{EventTime: eventTime}, Kind: Data},
		Body:   Body{Payload: payload},
	}
}

// NewWatermarkMessage returns a control message carrying the watermark.
func NewWatermarkMessage(wm time.Time) Message {
	return Message{Header: Header{MessageInfo: MessageInfo{EventTime: wm}, Kind: WMB}}
}

// NewBarrierMessage returns a snapshot barrier for the given snapshot.
func NewBarrierMessage(snapshotID int64) Message {
	return Message{Header: Header{Kind: Barrier, SnapshotID: snapshotID}}
}

// NewEOSMessage returns an end of stream marker.
func NewEOSMessage() Message {
	return Message{Header: Header{Kind: EOS}}
}
