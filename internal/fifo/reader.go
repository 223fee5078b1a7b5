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
	"math"
	"time"
)

// Reader is a consumer of a Fifo. At most one reader per Fifo may throttle
// the writer; any number of non-throttling readers may follow the rear
// index independently. A Reader is not safe for concurrent use.
type Reader struct {
	fifo          *Fifo
	obtained      uint32
	totalReleased uint64

	localFront    uint32
	throttleFront *Index // nil if this reader does not throttle the writer
	flush         bool

	armLevel     int32
	triggerLevel uint32
	isArmed      bool

	totalLost    uint64
	totalFlushed uint64
}

type readerOptions struct {
	throttlesWriter bool
	flush           bool
}

// ReaderOption configures a Reader.
type ReaderOption func(*readerOptions)

// ThrottlesWriter selects whether this reader publishes its front index so
// the writer cannot overrun it. It has no effect on an unthrottled Fifo.
// The default is true.
func ThrottlesWriter(throttles bool) ReaderOption {
	return func(o *readerOptions) { o.throttlesWriter = throttles }
}

// FlushOnOverflow selects how the reader recovers from an overflow: true
// discards everything buffered, false keeps the newest frameCount frames.
// The default is false.
func FlushOnOverflow(flush bool) ReaderOption {
	return func(o *readerOptions) { o.flush = flush }
}

// NewReader returns a reader of f positioned at index 0. By default it wakes
// the writer on every release.
func NewReader(f *Fifo, opts ...ReaderOption) *Reader {
	o := readerOptions{throttlesWriter: true}
	for _, opt := range opts {
		opt(&o)
	}
	r := &Reader{
		fifo:         f,
		flush:        o.flush,
		armLevel:     -1,
		triggerLevel: f.frameCount,
		isArmed:      true, // initial fill level 0 is above armLevel
	}
	if o.throttlesWriter {
		r.throttleFront = f.throttleFront
	}
	return r
}

// Read copies up to len(p)/frameSize frames out of the FIFO, blocking for up
// to timeout if it is empty. Trailing bytes of p short of a full frame are
// left untouched. It returns the frames read and the frames lost
// to an overflow since the previous call. The error is non-nil only when no
// frame was read.
func (r *Reader) Read(p []byte, timeout time.Duration) (n, lost int, err error) {
	f := r.fifo
	iov, lost, err := r.Obtain(len(p)/int(f.frameSize), timeout)
	n = iov.Frames()
	if n == 0 {
		return 0, lost, err
	}
	copied := copy(p, f.Region(iov[0]))
	if iov[1].Length > 0 {
		copy(p[copied:], f.Region(iov[1]))
	}
	r.Release(n)
	return n, lost, nil
}

// Obtain makes up to count frames available for reading, blocking for up to
// timeout if the FIFO is empty and count > 0. lost is always reported, even
// when frames are returned. The error is non-nil only when no frames were
// obtained: ErrShutdown, ErrOverflow, ErrTimedOut or ErrInterrupted. After
// ErrOverflow the reader has already caught up with the writer.
func (r *Reader) Obtain(count int, timeout time.Duration) (iov Slice, lost int, err error) {
	avail, l, err := r.obtain(frames(count), timeout)
	r.obtained = avail
	return r.fifo.split(r.localFront, avail), int(l), err
}

// Available returns the number of frames that could be read now without
// reserving them. Lost-frame accounting and overflow recovery still apply.
func (r *Reader) Available() (n, lost int, err error) {
	avail, l, err := r.obtain(math.MaxUint32, NoWait)
	return int(avail), int(l), err
}

// Flush discards everything currently readable and returns how many frames
// were dropped.
func (r *Reader) Flush() (n, lost int, err error) {
	avail, l, err := r.obtain(math.MaxUint32, NoWait)
	r.obtained = avail
	if avail == 0 {
		return 0, int(l), err
	}
	r.Release(int(avail))
	r.totalFlushed += uint64(avail)
	return int(avail), int(l), nil
}

func (r *Reader) obtain(count uint32, timeout time.Duration) (avail, lost uint32, err error) {
	f := r.fifo
	retries := f.retries
	var rear uint32
	for {
		rear = f.writerRear.Load()
		if count == 0 || rear != r.localFront || timeout <= 0 || f.IsShutdown() {
			break
		}
		retry, werr := f.block(f.writerRear, rear, timeout, &retries)
		if retry {
			continue
		}
		err = werr
		timeout = NoWait
	}

	filled, lost, derr := f.diff(rear, r.localFront, r.flush)
	r.totalLost += uint64(lost)
	r.totalReleased += uint64(lost)
	if derr != nil {
		if errors.Is(derr, ErrOverflow) {
			// Catch up with the writer, keeping the frames still valid.
			if r.flush {
				r.localFront = rear
			} else {
				r.localFront = rear - f.frameCountP2
			}
			logger.Warningf("fifo: reader overrun, lost %d frames", lost)
		}
		err = derr
		filled = 0
	}
	if filled > count {
		filled = count
	}
	if filled > 0 {
		return filled, lost, nil
	}
	return 0, lost, err
}

// Release consumes count frames of the last Obtain. Releasing more than was
// obtained is a protocol violation and shuts the FIFO down.
func (r *Reader) Release(count int) {
	if count <= 0 {
		return
	}
	f := r.fifo
	if uint64(count) > uint64(r.obtained) {
		logger.Errorf("fifo: reader release(%d) exceeds obtained %d", count, r.obtained)
		f.Shutdown()
		return
	}
	n := uint32(count)
	if front := r.throttleFront; front != nil {
		filled, _, err := f.diff(f.writerRear.Load(), r.localFront, false)
		r.localFront = f.sum(r.localFront, n)
		front.Store(r.localFront)
		if err == nil {
			if int64(filled) > int64(r.armLevel) {
				r.isArmed = true
			}
			if r.isArmed && filled-n < r.triggerLevel {
				if _, werr := front.wake(1); werr != nil {
					logger.Errorf("fifo: reader wake failed: %v", werr)
				}
				r.isArmed = false
			}
		}
	} else {
		r.localFront = f.sum(r.localFront, n)
	}
	r.obtained -= n
	r.totalReleased += uint64(n)
}

// SetHysteresis configures writer wakeups. The reader becomes armed when the
// fill level is above armLevel, and an armed reader wakes the writer when a
// release takes the fill level below triggerLevel. An armLevel < 0 keeps the
// reader always armed. Both are clamped to the frame count.
func (r *Reader) SetHysteresis(armLevel int32, triggerLevel uint32) {
	if armLevel < 0 {
		armLevel = -1
	} else if uint32(armLevel) > r.fifo.frameCount {
		armLevel = int32(r.fifo.frameCount)
	}
	if triggerLevel > r.fifo.frameCount {
		triggerLevel = r.fifo.frameCount
	}
	// Lowering the arm level may mean the current fill is now above it.
	if armLevel < r.armLevel {
		r.isArmed = true
	}
	r.armLevel = armLevel
	r.triggerLevel = triggerLevel
}

// Hysteresis returns the arm and trigger levels.
func (r *Reader) Hysteresis() (armLevel int32, triggerLevel uint32) {
	return r.armLevel, r.triggerLevel
}

// TotalLost returns the number of frames lost to overflows.
func (r *Reader) TotalLost() uint64 { return r.totalLost }

// TotalFlushed returns the number of frames discarded by Flush.
func (r *Reader) TotalFlushed() uint64 { return r.totalFlushed }

// TotalReleased returns the number of frames consumed, including lost ones.
func (r *Reader) TotalReleased() uint64 { return r.totalReleased }
