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
	"sync/atomic"
	"time"
	"unsafe"
)

// Index is a monotonic 32-bit frame counter, typically living in memory
// shared between processes, together with the Waiter used to block on it.
//
// The word is accessed only atomically. Stores publish every buffer write
// made before them; loads happen before any buffer read that follows.
type Index struct {
	word   *uint32
	waiter Waiter
}

// NewIndex wraps word, which must be 4-byte aligned. A nil waiter selects
// polling.
func NewIndex(word *uint32, w Waiter) (*Index, error) {
	if word == nil {
		return nil, errors.New("fifo: nil index word")
	}
	if uintptr(unsafe.Pointer(word))%unsafe.Alignof(*word) != 0 {
		return nil, fmt.Errorf("fifo: index word %p is not %d-byte aligned", word, unsafe.Alignof(*word))
	}
	if w == nil {
		w = PollWaiter{}
	}
	return &Index{word: word, waiter: w}, nil
}

// Load returns the current value.
func (i *Index) Load() uint32 {
	return atomic.LoadUint32(i.word)
}

// Store publishes v.
func (i *Index) Store(v uint32) {
	atomic.StoreUint32(i.word, v)
}

func (i *Index) wait(expected uint32, timeout time.Duration) error {
	return i.waiter.Wait(i.word, expected, timeout)
}

func (i *Index) wake(n int) (int, error) {
	return i.waiter.Wake(i.word, n)
}
