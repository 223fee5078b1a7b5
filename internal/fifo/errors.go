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

import "errors"

var (
	// ErrShutdown is returned by every operation once the FIFO has been
	// shut down after a protocol violation or a corrupt index.
	ErrShutdown = errors.New("fifo: shut down")

	// ErrOverflow reports that the writer lapped a reader. The reader has
	// already resynchronized; the lost frame count is returned alongside.
	ErrOverflow = errors.New("fifo: overflow")

	// ErrTimedOut is returned when a blocking obtain made no progress
	// before its timeout expired.
	ErrTimedOut = errors.New("fifo: timed out")

	// ErrInterrupted is returned when a wait was interrupted by a signal.
	ErrInterrupted = errors.New("fifo: interrupted")

	// ErrWouldBlock is returned by a Waiter when the index word no longer
	// held the expected value at the time of the wait.
	ErrWouldBlock = errors.New("fifo: would block")

	// ErrUnsupported is returned by FutexWaiter on platforms without futex.
	ErrUnsupported = errors.New("fifo: futex operations not supported on this platform")
)
