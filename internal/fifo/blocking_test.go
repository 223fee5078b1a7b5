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
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
)

// waiters returns the strategies available on this platform.
func waiters() map[string]Waiter {
	m := map[string]Waiter{"poll": PollWaiter{Interval: 200 * time.Microsecond}}
	if FutexSupported {
		m["futex"] = FutexWaiter{}
	}
	return m
}

func TestBlockedReaderWokenByWriter(t *testing.T) {
	for name, wt := range waiters() {
		t.Run(name, func(t *testing.T) {
			f := newTestFifo(t, 64, 2, WithWaiter(wt))
			w, r := NewWriter(f), NewReader(f)

			type result struct {
				n   int
				err error
				buf []byte
			}
			done := make(chan result, 1)
			go func() {
				buf := make([]byte, 8)
				n, _, err := r.Read(buf, 5*time.Second)
				done <- result{n, err, buf}
			}()

			time.Sleep(50 * time.Millisecond)
			data := pattern(8, 9)
			if n, err := w.Write(data, NoWait); n != 4 || err != nil {
				t.Fatalf("Write = %d, %v; want 4", n, err)
			}

			select {
			case res := <-done:
				if res.err != nil || res.n != 4 {
					t.Fatalf("Read = %d, %v; want 4, nil", res.n, res.err)
				}
				if diff := cmp.Diff(data, res.buf); diff != "" {
					t.Fatalf("Read data mismatch (-want +got):\n%s", diff)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("reader was not woken")
			}
		})
	}
}

func TestBlockedWriterWokenByReader(t *testing.T) {
	for name, wt := range waiters() {
		t.Run(name, func(t *testing.T) {
			f := newTestFifo(t, 32, 1, WithWaiter(wt))
			w, r := NewWriter(f), NewReader(f)
			if n, _ := w.Write(pattern(32, 0), NoWait); n != 32 {
				t.Fatalf("fill Write = %d, want 32", n)
			}

			done := make(chan error, 1)
			go func() {
				n, err := w.Write(pattern(4, 100), Forever)
				if err == nil && n != 4 {
					err = errors.New("short write")
				}
				done <- err
			}()

			time.Sleep(50 * time.Millisecond)
			select {
			case err := <-done:
				t.Fatalf("Write returned %v on a full FIFO", err)
			default:
			}
			if n, _, err := r.Read(make([]byte, 4), NoWait); n != 4 || err != nil {
				t.Fatalf("Read = %d, %v; want 4", n, err)
			}

			select {
			case err := <-done:
				if err != nil {
					t.Fatalf("blocked Write failed: %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("writer was not woken")
			}
			if n, _, _ := r.Available(); n != 32 {
				t.Fatalf("Available() = %d, want 32", n)
			}
		})
	}
}

func TestReadTimesOut(t *testing.T) {
	for name, wt := range waiters() {
		t.Run(name, func(t *testing.T) {
			f := newTestFifo(t, 16, 1, WithWaiter(wt))
			r := NewReader(f)
			start := time.Now()
			n, lost, err := r.Read(make([]byte, 4), 50*time.Millisecond)
			elapsed := time.Since(start)
			if n != 0 || lost != 0 || !errors.Is(err, ErrTimedOut) {
				t.Fatalf("Read = %d, %d, %v; want 0, 0, ErrTimedOut", n, lost, err)
			}
			if elapsed < 40*time.Millisecond || elapsed > 2*time.Second {
				t.Errorf("timeout took %v, expected ~50ms", elapsed)
			}
		})
	}
}

func TestWriteTimesOut(t *testing.T) {
	for name, wt := range waiters() {
		t.Run(name, func(t *testing.T) {
			f := newTestFifo(t, 8, 1, WithWaiter(wt))
			w := NewWriter(f)
			w.Write(pattern(8, 0), NoWait)
			start := time.Now()
			n, err := w.Write(pattern(1, 0), 50*time.Millisecond)
			elapsed := time.Since(start)
			if n != 0 || !errors.Is(err, ErrTimedOut) {
				t.Fatalf("Write = %d, %v; want 0, ErrTimedOut", n, err)
			}
			if elapsed < 40*time.Millisecond {
				t.Errorf("timeout took %v, expected ~50ms", elapsed)
			}
		})
	}
}

func TestZeroCountDoesNotBlock(t *testing.T) {
	f := newTestFifo(t, 8, 1, WithWaiter(PollWaiter{}))
	r := NewReader(f)
	start := time.Now()
	if iov, _, err := r.Obtain(0, Forever); iov.Frames() != 0 || err != nil {
		t.Fatalf("Obtain(0) = %+v, %v", iov, err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("Obtain(0, Forever) blocked")
	}
}

// TestRetryBudgetExhausted drives the would-block path with a waiter that
// always reports the index as changed.
func TestRetryBudgetExhausted(t *testing.T) {
	for _, retries := range []int{0, 2, 5} {
		ww := &wouldBlockWaiter{}
		f := newTestFifo(t, 8, 1, WithWaiter(ww), WithRetries(retries))
		r := NewReader(f)
		n, _, err := r.Read(make([]byte, 1), Forever)
		if n != 0 || !errors.Is(err, ErrTimedOut) {
			t.Fatalf("retries=%d: Read = %d, %v; want 0, ErrTimedOut", retries, n, err)
		}
		if ww.waits != retries+1 {
			t.Fatalf("retries=%d: waits = %d, want %d", retries, ww.waits, retries+1)
		}
	}
}

type wouldBlockWaiter struct {
	waits int
}

func (w *wouldBlockWaiter) Wait(*uint32, uint32, time.Duration) error {
	w.waits++
	return ErrWouldBlock
}

func (w *wouldBlockWaiter) Wake(*uint32, int) (int, error) { return 0, nil }

// TestConcurrentTransfer streams a large pattern through a small
// non-power-of-two FIFO with the writer and reader on separate goroutines.
func TestConcurrentTransfer(t *testing.T) {
	for name, wt := range waiters() {
		t.Run(name, func(t *testing.T) {
			const frameSize = 4
			f := newTestFifo(t, 2049, frameSize, WithWaiter(wt))
			w, r := NewWriter(f), NewReader(f)

			input := make([]byte, 200_000*frameSize)
			for i := range input {
				input[i] = byte(i*31 + i>>8)
			}
			output := make([]byte, 0, len(input))

			var g errgroup.Group
			g.Go(func() error {
				for off := 0; off < len(input); {
					chunk := 1 + (off/frameSize)%700
					end := off + chunk*frameSize
					if end > len(input) {
						end = len(input)
					}
					n, err := w.Write(input[off:end], time.Second)
					if err != nil && !errors.Is(err, ErrTimedOut) {
						return err
					}
					off += n * frameSize
				}
				return nil
			})
			g.Go(func() error {
				buf := make([]byte, 333*frameSize)
				for len(output) < len(input) {
					n, lost, err := r.Read(buf, time.Second)
					if lost != 0 {
						return errors.New("throttled reader lost frames")
					}
					if err != nil && !errors.Is(err, ErrTimedOut) {
						return err
					}
					output = append(output, buf[:n*frameSize]...)
				}
				return nil
			})
			if err := g.Wait(); err != nil {
				t.Fatalf("transfer failed: %v", err)
			}
			if diff := cmp.Diff(input, output); diff != "" {
				t.Fatalf("stream mismatch (-want +got):\n%s", diff)
			}
			if w.TotalReleased() != r.TotalReleased() {
				t.Fatalf("writer released %d, reader released %d", w.TotalReleased(), r.TotalReleased())
			}
		})
	}
}
