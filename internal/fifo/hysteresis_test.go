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

import "testing"

// TestWriterWakesOnEveryReleaseByDefault checks the default levels: armed
// below a full FIFO, triggering on any non-empty fill.
func TestWriterWakesOnEveryReleaseByDefault(t *testing.T) {
	cw := newCountingWaiter(PollWaiter{})
	f := newTestFifo(t, 16, 1, WithWaiter(cw))
	w := NewWriter(f)
	if arm, trig := w.Hysteresis(); arm != 16 || trig != 0 {
		t.Fatalf("default Hysteresis() = %d, %d; want 16, 0", arm, trig)
	}
	for i := 0; i < 3; i++ {
		w.Write(pattern(2, 0), NoWait)
	}
	if got := cw.count(f.writerRear); got != 3 {
		t.Fatalf("reader wakes = %d, want 3", got)
	}
}

func TestWriterHysteresis(t *testing.T) {
	cw := newCountingWaiter(PollWaiter{})
	f := newTestFifo(t, 16, 1, WithWaiter(cw))
	w := NewWriter(f)
	w.SetHysteresis(4, 8)

	steps := []struct {
		frames    int
		wantWakes int
	}{
		{4, 0}, // fill 0 -> 4, armed, not above 8
		{4, 0}, // 4 -> 8, not above 8
		{1, 1}, // 8 -> 9, crosses trigger, disarms
		{1, 1}, // 9 -> 10, disarmed
	}
	for i, s := range steps {
		if n, err := w.Write(pattern(s.frames, 0), NoWait); n != s.frames || err != nil {
			t.Fatalf("step %d: Write = %d, %v", i, n, err)
		}
		if got := cw.count(f.writerRear); got != s.wantWakes {
			t.Fatalf("step %d: reader wakes = %d, want %d", i, got, s.wantWakes)
		}
	}

	// Draining below the arm level re-arms the writer.
	r := NewReader(f)
	r.Read(make([]byte, 8), NoWait)
	w.Write(pattern(1, 0), NoWait) // fill 2 < 4: armed, 3 <= 8
	w.Write(pattern(7, 0), NoWait) // fill 3 -> 10
	if got := cw.count(f.writerRear); got != 2 {
		t.Fatalf("after re-arm, reader wakes = %d, want 2", got)
	}
}

func TestWriterHysteresisClamped(t *testing.T) {
	f := newTestFifo(t, 16, 1)
	w := NewWriter(f)
	w.SetHysteresis(100, 200)
	if arm, trig := w.Hysteresis(); arm != 16 || trig != 16 {
		t.Fatalf("Hysteresis() = %d, %d; want 16, 16", arm, trig)
	}
}

func TestReaderWakesOnEveryReleaseByDefault(t *testing.T) {
	cw := newCountingWaiter(PollWaiter{})
	f := newTestFifo(t, 16, 1, WithWaiter(cw))
	w, r := NewWriter(f), NewReader(f)
	if arm, trig := r.Hysteresis(); arm != -1 || trig != 16 {
		t.Fatalf("default Hysteresis() = %d, %d; want -1, 16", arm, trig)
	}
	w.Write(pattern(6, 0), NoWait)
	for i := 0; i < 3; i++ {
		r.Read(make([]byte, 2), NoWait)
	}
	if got := cw.count(f.throttleFront); got != 3 {
		t.Fatalf("writer wakes = %d, want 3", got)
	}
}

func TestReaderHysteresis(t *testing.T) {
	cw := newCountingWaiter(PollWaiter{})
	f := newTestFifo(t, 16, 1, WithWaiter(cw))
	w, r := NewWriter(f), NewReader(f)
	if n, err := w.Write(pattern(16, 0), NoWait); n != 16 || err != nil {
		t.Fatalf("Write = %d, %v; want 16", n, err)
	}
	r.SetHysteresis(12, 4)

	steps := []struct {
		frames    int
		wantWakes int
	}{
		{4, 0}, // fill 16 -> 12, armed, not below 4
		{4, 0}, // 12 -> 8
		{5, 1}, // 8 -> 3, crosses trigger, disarms
		{1, 1}, // 3 -> 2, disarmed
	}
	for i, s := range steps {
		if n, _, err := r.Read(make([]byte, s.frames), NoWait); n != s.frames || err != nil {
			t.Fatalf("step %d: Read = %d, %v", i, n, err)
		}
		if got := cw.count(f.throttleFront); got != s.wantWakes {
			t.Fatalf("step %d: writer wakes = %d, want %d", i, got, s.wantWakes)
		}
	}
}

func TestReaderHysteresisClamped(t *testing.T) {
	f := newTestFifo(t, 16, 1)
	r := NewReader(f)
	r.SetHysteresis(-50, 100)
	if arm, trig := r.Hysteresis(); arm != -1 || trig != 16 {
		t.Fatalf("Hysteresis() = %d, %d; want -1, 16", arm, trig)
	}
	r.SetHysteresis(40, 3)
	if arm, trig := r.Hysteresis(); arm != 16 || trig != 3 {
		t.Fatalf("Hysteresis() = %d, %d; want 16, 3", arm, trig)
	}
}

func TestNonThrottlingReaderNeverWakesWriter(t *testing.T) {
	cw := newCountingWaiter(PollWaiter{})
	f := newTestFifo(t, 16, 1, WithWaiter(cw))
	w := NewWriter(f)
	r := NewReader(f, ThrottlesWriter(false))
	w.Write(pattern(8, 0), NoWait)
	r.Read(make([]byte, 8), NoWait)
	if got := cw.count(f.throttleFront); got != 0 {
		t.Fatalf("writer wakes = %d, want 0", got)
	}
	if got := f.State().Front; got != 0 {
		t.Fatalf("published front = %d, want 0", got)
	}
}
