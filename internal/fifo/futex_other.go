//go:build !linux

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

import "time"

// FutexSupported reports whether FutexWaiter works on this platform.
const FutexSupported = false

// FutexWaiter is not supported on this platform; use PollWaiter.
type FutexWaiter struct {
	Shared bool
}

// Wait is not supported on this platform.
func (FutexWaiter) Wait(*uint32, uint32, time.Duration) error {
	return ErrUnsupported
}

// Wake is not supported on this platform.
func (FutexWaiter) Wake(*uint32, int) (int, error) {
	return 0, ErrUnsupported
}
