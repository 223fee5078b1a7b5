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
	"math"
	"time"
)

// Writer is the single producer of a Fifo. It is not safe for concurrent use.
type Writer struct {
	fifo          *Fifo
	obtained      uint32
	totalReleased uint64

	localRear       uint32
	armLevel        uint32
	triggerLevel    uint32
	isArmed         bool
	effectiveFrames uint32
}

// NewWriter returns the writer for f. By default the writer wakes readers
// on every release.
func NewWriter(f *Fifo) *Writer {
	return &Writer{
		fifo:            f,
		armLevel:        f.frameCount,
		triggerLevel:    0,
		isArmed:         true, // initial fill level 0 is below armLevel
		effectiveFrames: f.frameCount,
	}
}

// Write copies whole frames from p into the FIFO, blocking for up to timeout
// if there is no room. Trailing bytes of p short of a full frame are not
// written. It returns the number of frames written. The error is non-nil
// only when no frame was written.
func (w *Writer) Write(p []byte, timeout time.Duration) (int, error) {
	f := w.fifo
	iov, err := w.Obtain(len(p)/int(f.frameSize), timeout)
	n := iov.Frames()
	if n == 0 {
		return 0, err
	}
	copied := copy(f.Region(iov[0]), p)
	if iov[1].Length > 0 {
		copy(f.Region(iov[1]), p[copied:])
	}
	w.Release(n)
	return n, nil
}

// Obtain reserves up to count frames for writing, blocking for up to timeout
// if the FIFO is full and count > 0. The caller fills the returned runs and
// then calls Release. The error is non-nil only when no frames were obtained:
// ErrShutdown, ErrTimedOut or ErrInterrupted.
func (w *Writer) Obtain(count int, timeout time.Duration) (Slice, error) {
	avail, err := w.obtain(frames(count), timeout)
	w.obtained = avail
	return w.fifo.split(w.localRear, avail), err
}

// Available returns the number of frames that could be written now without
// reserving them.
func (w *Writer) Available() (int, error) {
	avail, err := w.obtain(math.MaxUint32, NoWait)
	return int(avail), err
}

func (w *Writer) obtain(count uint32, timeout time.Duration) (uint32, error) {
	f := w.fifo
	var (
		avail uint32
		err   error
	)
	if front := f.throttleFront; front != nil {
		retries := f.retries
		for {
			seen := front.Load()
			filled, _, derr := f.diff(w.localRear, seen, false)
			if derr != nil {
				return 0, derr
			}
			avail = 0
			if w.effectiveFrames > filled {
				avail = w.effectiveFrames - filled
			}
			if count == 0 || avail > 0 || timeout <= 0 {
				break
			}
			retry, werr := f.block(front, seen, timeout, &retries)
			if retry {
				continue
			}
			err = werr
			timeout = NoWait
		}
	} else {
		if f.IsShutdown() {
			return 0, ErrShutdown
		}
		avail = w.effectiveFrames
	}
	if avail > count {
		avail = count
	}
	if avail > 0 {
		return avail, nil
	}
	return 0, err
}

// Release publishes count frames of the last Obtain. Releasing more than was
// obtained is a protocol violation and shuts the FIFO down.
func (w *Writer) Release(count int) {
	if count <= 0 {
		return
	}
	f := w.fifo
	if uint64(count) > uint64(w.obtained) {
		logger.Errorf("fifo: writer release(%d) exceeds obtained %d", count, w.obtained)
		f.Shutdown()
		return
	}
	n := uint32(count)
	if front := f.throttleFront; front != nil {
		filled, _, err := f.diff(w.localRear, front.Load(), false)
		w.localRear = f.sum(w.localRear, n)
		f.writerRear.Store(w.localRear)
		if err == nil {
			if filled < w.armLevel {
				w.isArmed = true
			}
			if w.isArmed && uint64(filled)+uint64(n) > uint64(w.triggerLevel) {
				if _, werr := f.writerRear.wake(math.MaxInt32); werr != nil {
					logger.Errorf("fifo: writer wake failed: %v", werr)
				}
				w.isArmed = false
			}
		}
	} else {
		w.localRear = f.sum(w.localRear, n)
		f.writerRear.Store(w.localRear)
	}
	w.obtained -= n
	w.totalReleased += uint64(n)
}

// Resize sets the number of frames the writer treats as the capacity,
// clamped to the physical frame count. Shrinking pulls the hysteresis levels
// down with it.
func (w *Writer) Resize(frameCount uint32) {
	if frameCount > w.fifo.frameCount {
		frameCount = w.fifo.frameCount
	}
	if frameCount < w.effectiveFrames {
		if w.armLevel > frameCount {
			w.armLevel = frameCount
		}
		if w.triggerLevel > frameCount {
			w.triggerLevel = frameCount
		}
	}
	w.effectiveFrames = frameCount
}

// Size returns the effective capacity set by Resize.
func (w *Writer) Size() uint32 {
	return w.effectiveFrames
}

// SetHysteresis configures reader wakeups. The writer becomes armed when the
// fill level is below armLevel, and an armed writer wakes readers when a
// release takes the fill level above triggerLevel. Both are clamped to the
// effective capacity.
func (w *Writer) SetHysteresis(armLevel, triggerLevel uint32) {
	if armLevel > w.effectiveFrames {
		armLevel = w.effectiveFrames
	}
	if triggerLevel > w.effectiveFrames {
		triggerLevel = w.effectiveFrames
	}
	// Raising the arm level may mean the current fill is now below it.
	if armLevel > w.armLevel {
		w.isArmed = true
	}
	w.armLevel = armLevel
	w.triggerLevel = triggerLevel
}

// Hysteresis returns the arm and trigger levels.
func (w *Writer) Hysteresis() (armLevel, triggerLevel uint32) {
	return w.armLevel, w.triggerLevel
}

// TotalReleased returns the number of frames published so far.
func (w *Writer) TotalReleased() uint64 {
	return w.totalReleased
}
