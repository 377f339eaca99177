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

package watermark

// Coalescer computes the watermark of a vertex instance from the watermarks of its inputs. An input that ended no
// longer holds the watermark back; when every input ended the watermark is MaxWatermark.
// It is not safe for concurrent use.
type Coalescer struct {
	inputs []Watermark
	done   []bool
	last   Watermark
}

// NewCoalescer returns a coalescer of n inputs.
func NewCoalescer(n int) *Coalescer {
	c := &Coalescer{
		inputs: make([]Watermark, n),
		done:   make([]bool, n),
		last:   InitialWatermark,
	}
	for i := range c.inputs {
		c.inputs[i] = InitialWatermark
	}
	return c
}

// Observe records the watermark of an input. It returns the coalesced watermark and true if it advanced.
func (c *Coalescer) Observe(input int, wm Watermark) (Watermark, bool) {
	if wm.AfterWatermark(c.inputs[input]) {
		c.inputs[input] = wm
	}
	return c.advance()
}

// Done marks the input as ended. It returns the coalesced watermark and true if it advanced.
func (c *Coalescer) Done(input int) (Watermark, bool) {
	c.done[input] = true
	return c.advance()
}

// Current returns the coalesced watermark.
func (c *Coalescer) Current() Watermark {
	return c.last
}

func (c *Coalescer) advance() (Watermark, bool) {
	lowest := MaxWatermark
	for i, wm := range c.inputs {
		if !c.done[i] && wm.BeforeWatermark(lowest) {
			lowest = wm
		}
	}
	if lowest.AfterWatermark(c.last) {
		c.last = lowest
		return lowest, true
	}
	return c.last, false
}
