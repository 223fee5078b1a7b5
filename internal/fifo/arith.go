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

// Index arithmetic. All indices are uint32 and wrap naturally; the wraparound
// is part of the protocol and must not be replaced by wider or signed types.

// roundUp returns the smallest power of two >= v. v must be <= 1<<31.
func roundUp(v uint32) uint32 {
	if v <= 1 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}

// sum advances index by increment frames. When the frame count is not a
// power of two, reaching the end of the logical ring skips the fudge range
// so that index&mask always stays below frameCount.
//
// increment must be <= frameCountP2.
func (f *Fifo) sum(index, increment uint32) uint32 {
	if f.fudgeFactor == 0 {
		return index + increment
	}
	mask := f.frameCountP2 - 1
	if (index&mask)+increment >= f.frameCount {
		increment += f.fudgeFactor
	}
	return index + increment
}

// diff returns the number of frames filled between front and rear.
//
// On ErrOverflow, lost is the number of frames that can no longer be read:
// the raw distance less the frameCount frames still valid in the buffer
// (none when flush is set) less the skipped fudge indices. On any other
// error lost is zero.
func (f *Fifo) diff(rear, front uint32, flush bool) (filled, lost uint32, err error) {
	if f.IsShutdown() {
		return 0, 0, ErrShutdown
	}
	d := rear - front
	if f.fudgeFactor > 0 {
		mask := f.frameCountP2 - 1
		rearOffset := rear & mask
		frontOffset := front & mask
		if rearOffset >= f.frameCount || frontOffset >= f.frameCount {
			logger.Errorf("fifo: corrupt indices frontOffset=%d rearOffset=%d frameCount=%d",
				frontOffset, rearOffset, f.frameCount)
			f.Shutdown()
			return 0, 0, ErrShutdown
		}
		// Always a multiple of frameCountP2.
		genDiff := (rear &^ mask) - (front &^ mask)
		// The writer may be one generation ahead; any further and frames were lost.
		if genDiff > f.frameCountP2 {
			lost = d - f.retained(flush) - f.fudgeFactor*(genDiff/f.frameCountP2)
			return 0, lost, ErrOverflow
		}
		if genDiff > 0 {
			// Still possible for d to exceed frameCount here; checked below.
			d -= f.fudgeFactor
		}
	}
	if d > f.frameCount {
		return 0, d - f.retained(flush), ErrOverflow
	}
	return d, 0, nil
}

// retained is the number of frames a reader can still recover after an
// overflow.
func (f *Fifo) retained(flush bool) uint32 {
	if flush {
		return 0
	}
	return f.frameCount
}
