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
	"sync/atomic"
	"time"
)

const (
	// NoWait makes Obtain, Read and Write probe once without blocking.
	NoWait time.Duration = 0

	// Forever disables the timeout bound on a blocking call.
	Forever time.Duration = math.MaxInt64

	// DefaultPollInterval is the sleep step used by a zero PollWaiter.
	DefaultPollInterval = time.Millisecond
)

// Waiter blocks on and wakes waiters of a 32-bit index word. Shutdown
// releases blocked callers through Wake, so a Waiter other than PollWaiter
// must return from Wait when woken.
type Waiter interface {
	// Wait blocks while *addr == expected, for at most timeout (Forever
	// means no bound). It returns nil when woken, ErrWouldBlock if *addr
	// did not hold expected, ErrTimedOut or ErrInterrupted.
	Wait(addr *uint32, expected uint32, timeout time.Duration) error
	// Wake wakes up to n waiters on addr and returns how many were woken.
	Wake(addr *uint32, n int) (int, error)
}

// PollWaiter is the sleep-based fallback for environments without futex.
// Wait re-checks the word every Interval; Wake does nothing.
type PollWaiter struct {
	Interval time.Duration
}

// Wait implements Waiter.
func (p PollWaiter) Wait(addr *uint32, expected uint32, timeout time.Duration) error {
	return p.waitUntil(addr, expected, timeout, nil)
}

// waitUntil is Wait that also returns nil once stop reports true. Polling
// waiters cannot be woken, so this is how Shutdown reaches them.
func (p PollWaiter) waitUntil(addr *uint32, expected uint32, timeout time.Duration, stop func() bool) error {
	if atomic.LoadUint32(addr) != expected {
		return ErrWouldBlock
	}
	if timeout <= 0 {
		return ErrTimedOut
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	var deadline time.Time
	if timeout != Forever {
		deadline = time.Now().Add(timeout)
	}
	for {
		if stop != nil && stop() {
			return nil
		}
		step := interval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return ErrTimedOut
			}
			if remaining < step {
				step = remaining
			}
		}
		time.Sleep(step)
		if atomic.LoadUint32(addr) != expected {
			return nil
		}
	}
}

// Wake implements Waiter.
func (PollWaiter) Wake(*uint32, int) (int, error) {
	return 0, nil
}

// block waits for idx to move away from seen. retry reports a benign race:
// the index changed before the wait started and the caller should reload
// it without spending its timeout. Once the retry budget is exhausted the
// race is reported as a timeout.
func (f *Fifo) block(idx *Index, seen uint32, timeout time.Duration, retries *int) (retry bool, err error) {
	if p, ok := idx.waiter.(PollWaiter); ok {
		err = p.waitUntil(idx.word, seen, timeout, f.IsShutdown)
	} else {
		err = idx.wait(seen, timeout)
	}
	switch {
	case err == nil, errors.Is(err, ErrTimedOut), errors.Is(err, ErrInterrupted):
		return false, err
	case errors.Is(err, ErrWouldBlock):
		if *retries > 0 {
			*retries--
			return true, nil
		}
		return false, ErrTimedOut
	default:
		logger.Errorf("fifo: wait on index failed: %v", err)
		return false, err
	}
}
