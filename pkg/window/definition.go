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

package window

import (
	"fmt"
	"time"
)

// Kind is the kind of window.
type Kind int

const (
	KindSliding Kind = iota
	KindTumbling
)

func (k Kind) String() string {
	if k == KindTumbling {
		return "tumbling"
	}
	return "sliding"
}

// Definition describes a window.
type Definition struct {
	Kind   Kind
	Length time.Duration
	Slide  time.Duration
}

// Sliding returns a sliding window definition.
func Sliding(length, slide time.Duration) Definition {
	return Definition{Kind: KindSliding, Length: length, Slide: slide}
}

// Tumbling returns a tumbling window definition.
func Tumbling(length time.Duration) Definition {
	return Definition{Kind: KindTumbling, Length: length, Slide: length}
}

// Validate checks the length is a positive multiple of the slide, both in whole milliseconds.
func (d Definition) Validate() error {
	if d.Length.Milliseconds() <= 0 || d.Slide.Milliseconds() <= 0 {
		return fmt.Errorf("window length and slide must be at least 1ms, got %v and %v", d.Length, d.Slide)
	}
	if d.Length%time.Millisecond != 0 || d.Slide%time.Millisecond != 0 {
		return fmt.Errorf("window length and slide must be whole milliseconds")
	}
	if d.Length%d.Slide != 0 {
		return fmt.Errorf("window length %v is not a multiple of the slide %v", d.Length, d.Slide)
	}
	if d.Kind == KindTumbling && d.Length != d.Slide {
		return fmt.Errorf("tumbling window slide must equal its length")
	}
	return nil
}

// Policy returns the frame arithmetic of the window.
func (d Definition) Policy() SlidingWindowPolicy {
	return NewSlidingWindowPolicy(d.Length.Milliseconds(), d.Slide.Milliseconds())
}

func (d Definition) String() string {
	if d.Kind == KindTumbling {
		return fmt.Sprintf("tumbling(%v)", d.Length)
	}
	return fmt.Sprintf("sliding(%v, %v)", d.Length, d.Slide)
}
