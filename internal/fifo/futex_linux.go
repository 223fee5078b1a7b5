//go:build linux

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
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// FutexSupported reports whether FutexWaiter works on this platform.
const FutexSupported = true

// Futex operations from linux/futex.h.
const (
	futexWait        = 0
	futexWake        = 1
	futexPrivateFlag = 128
)

// FutexWaiter blocks on the index word with the Linux futex system call.
// Shared must be set when the word lives in memory mapped by more than one
// process; otherwise the cheaper process-private futex is used.
type FutexWaiter struct {
	Shared bool
}

func (w FutexWaiter) op(base int) uintptr {
	if w.Shared {
		return uintptr(base)
	}
	return uintptr(base | futexPrivateFlag)
}

// Wait implements Waiter.
//
// The value is re-checked before entering the kernel, which repeats the
// check atomically; either way a changed word yields ErrWouldBlock and the
// caller must reload the index.
func (w FutexWaiter) Wait(addr *uint32, expected uint32, timeout time.Duration) error {
	if atomic.LoadUint32(addr) != expected {
		return ErrWouldBlock
	}
	var ts *unix.Timespec
	if timeout != Forever {
		if timeout < 0 {
			timeout = 0
		}
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}
	// Syscall6 rather than RawSyscall6: the wait may park this thread for a
	// long time and the scheduler must know about it.
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		w.op(futexWait),
		uintptr(expected),
		uintptr(unsafe.Pointer(ts)),
		0,
		0,
	)
	switch errno {
	case 0:
		return nil
	case unix.EAGAIN:
		return ErrWouldBlock
	case unix.EINTR:
		return ErrInterrupted
	case unix.ETIMEDOUT:
		return ErrTimedOut
	default:
		return fmt.Errorf("futex wait failed: %w", errno)
	}
}

// Wake implements Waiter.
func (w FutexWaiter) Wake(addr *uint32, n int) (int, error) {
	r1, _, errno := unix.RawSyscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		w.op(futexWake),
		uintptr(n),
		0,
		0,
		0,
	)
	if errno != 0 {
		return 0, fmt.Errorf("futex wake failed: %w", errno)
	}
	return int(r1), nil
}
