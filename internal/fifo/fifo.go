/*
 *
 * Copyright 2025 gRPC authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package fifo

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"google.golang.org/grpc/grpclog"
)

var logger = grpclog.Component("audiofifo")

// DefaultRetries is the number of times a blocked obtain reloads an index
// that changed between the load and the wait before giving up.
const DefaultRetries = 2

// Iovec locates one contiguous run of frames in the FIFO buffer. Offset and
// Length are in frames.
type Iovec struct {
	Offset uint32
	Length uint32
}

// Slice is the result of an obtain: up to two runs of frames, in order. The
// second run starts at offset 0 and is empty unless the range wraps.
type Slice [2]Iovec

// Frames returns the total number of frames in s.
func (s Slice) Frames() int {
	return int(s[0].Length) + int(s[1].Length)
}

// State is a snapshot of a FIFO for diagnostics.
type State struct {
	FrameCount          uint32
	FrameCountRoundedUp uint32
	FudgeFactor         uint32
	FrameSize           uint32
	Rear                uint32 // published rear index
	Front               uint32 // published front index; zero when unthrottled
	Throttled           bool
	Shutdown            bool
}

func (s State) String() string {
	return fmt.Sprintf("frames=%d (p2=%d fudge=%d) frameSize=%d rear=%d front=%d throttled=%t shutdown=%t",
		s.FrameCount, s.FrameCountRoundedUp, s.FudgeFactor, s.FrameSize,
		s.Rear, s.Front, s.Throttled, s.Shutdown)
}

// Fifo owns the frame buffer and the shared indices. It is shared by exactly
// one Writer and one or more Readers, each of which keeps its own cursor.
type Fifo struct {
	frameCount   uint32
	frameCountP2 uint32 // frameCount rounded up to a power of two
	fudgeFactor  uint32 // frameCountP2 - frameCount
	frameSize    uint32
	buffer       []byte

	writerRear    *Index
	throttleFront *Index // nil when the writer may overwrite unread frames

	retries    int
	isShutdown atomic.Bool

	// Index storage when the caller does not supply shared words.
	rearWord  uint32
	frontWord uint32
}

type options struct {
	throttle bool
	rear     *Index
	front    *Index
	waiter   Waiter
	retries  int
}

// Option configures a Fifo.
type Option func(*options)

// WithThrottle selects whether readers may throttle the writer. With false
// the writer never blocks and overwrites frames a reader has not consumed;
// readers then see ErrOverflow. Ignored when WithIndices is used.
func WithThrottle(throttle bool) Option {
	return func(o *options) { o.throttle = throttle }
}

// WithIndices places the rear and front indices in caller-owned, typically
// shared, memory. A nil front makes the FIFO unthrottled.
func WithIndices(rear, front *Index) Option {
	return func(o *options) {
		o.rear = rear
		o.front = front
	}
}

// WithWaiter sets the wait/wake strategy for indices owned by the Fifo.
func WithWaiter(w Waiter) Option {
	return func(o *options) { o.waiter = w }
}

// WithRetries sets the budget for reloading an index that changed just
// before a wait.
func WithRetries(n int) Option {
	return func(o *options) { o.retries = n }
}

// New creates a FIFO of frameCount frames of frameSize bytes over buffer.
// A nil buffer is allocated. frameCount*frameSize must not exceed
// math.MaxInt32 so frame counts and byte counts fit in an int32.
func New(frameCount, frameSize uint32, buffer []byte, opts ...Option) (*Fifo, error) {
	o := options{throttle: true, retries: DefaultRetries}
	for _, opt := range opts {
		opt(&o)
	}
	if frameCount == 0 {
		return nil, errors.New("fifo: frame count must be positive")
	}
	if frameSize == 0 {
		return nil, errors.New("fifo: frame size must be positive")
	}
	if frameCount > math.MaxInt32/frameSize {
		return nil, fmt.Errorf("fifo: %d frames of %d bytes exceeds %d bytes", frameCount, frameSize, math.MaxInt32)
	}
	size := int(frameCount) * int(frameSize)
	switch {
	case buffer == nil:
		buffer = make([]byte, size)
	case len(buffer) < size:
		return nil, fmt.Errorf("fifo: buffer of %d bytes is smaller than %d frames of %d bytes", len(buffer), frameCount, frameSize)
	}
	if o.rear == nil && o.front != nil {
		return nil, errors.New("fifo: front index given without a rear index")
	}
	if o.retries < 0 {
		o.retries = 0
	}

	f := &Fifo{
		frameCount:   frameCount,
		frameCountP2: roundUp(frameCount),
		frameSize:    frameSize,
		buffer:       buffer[:size:size],
		retries:      o.retries,
	}
	f.fudgeFactor = f.frameCountP2 - f.frameCount

	if o.rear != nil {
		f.writerRear = o.rear
		f.throttleFront = o.front
	} else {
		w := o.waiter
		if w == nil {
			w = PollWaiter{}
		}
		f.writerRear = &Index{word: &f.rearWord, waiter: w}
		if o.throttle {
			f.throttleFront = &Index{word: &f.frontWord, waiter: w}
		}
	}
	if logger.V(2) {
		logger.Infof("fifo: created frames=%d p2=%d fudge=%d frameSize=%d throttled=%t",
			f.frameCount, f.frameCountP2, f.fudgeFactor, f.frameSize, f.throttleFront != nil)
	}
	return f, nil
}

// FrameCount returns the capacity in frames.
func (f *Fifo) FrameCount() uint32 { return f.frameCount }

// FrameCountRoundedUp returns the capacity rounded up to a power of two.
func (f *Fifo) FrameCountRoundedUp() uint32 { return f.frameCountP2 }

// FudgeFactor returns the number of index values skipped per generation.
func (f *Fifo) FudgeFactor() uint32 { return f.fudgeFactor }

// FrameSize returns the size of a frame in bytes.
func (f *Fifo) FrameSize() uint32 { return f.frameSize }

// Throttled reports whether the writer is limited by a reader's front index.
func (f *Fifo) Throttled() bool { return f.throttleFront != nil }

// Region returns the bytes of the buffer covered by v. It is only valid to
// touch these bytes between the obtain that returned v and the matching
// release.
func (f *Fifo) Region(v Iovec) []byte {
	start := int(v.Offset) * int(f.frameSize)
	end := start + int(v.Length)*int(f.frameSize)
	return f.buffer[start:end:end]
}

// Shutdown permanently disables the FIFO. Every later operation fails with
// ErrShutdown. Waiters blocked on a futex are woken so they observe it.
func (f *Fifo) Shutdown() {
	if !f.isShutdown.CompareAndSwap(false, true) {
		return
	}
	logger.Errorf("fifo: shutdown frames=%d frameSize=%d", f.frameCount, f.frameSize)
	f.writerRear.wake(math.MaxInt32)
	if f.throttleFront != nil {
		f.throttleFront.wake(math.MaxInt32)
	}
}

// IsShutdown reports whether Shutdown has been called.
func (f *Fifo) IsShutdown() bool {
	return f.isShutdown.Load()
}

// State returns a snapshot of the published indices.
func (f *Fifo) State() State {
	s := State{
		FrameCount:          f.frameCount,
		FrameCountRoundedUp: f.frameCountP2,
		FudgeFactor:         f.fudgeFactor,
		FrameSize:           f.frameSize,
		Rear:                f.writerRear.Load(),
		Throttled:           f.throttleFront != nil,
		Shutdown:            f.IsShutdown(),
	}
	if f.throttleFront != nil {
		s.Front = f.throttleFront.Load()
	}
	return s
}

// split describes avail frames starting at index as up to two runs.
func (f *Fifo) split(index, avail uint32) Slice {
	offset := index & (f.frameCountP2 - 1)
	part1 := f.frameCount - offset
	if part1 > avail {
		part1 = avail
	}
	var part2 uint32
	if part1 > 0 {
		part2 = avail - part1
	}
	return Slice{{Offset: offset, Length: part1}, {Offset: 0, Length: part2}}
}

// frames converts a caller's count to the uint32 domain of the indices.
func frames(count int) uint32 {
	if count <= 0 {
		return 0
	}
	if uint64(count) > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(count)
}
