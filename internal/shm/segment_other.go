//go:build !unix

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

package shm

import (
	"fmt"

	"github.com/markrussinovich/audiofifo/internal/fifo"
)

// CreateSegment is not supported on this platform.
func CreateSegment(string, uint32, uint32, bool) (*Segment, error) {
	return nil, fmt.Errorf("shm: create segment: %w", fifo.ErrUnsupported)
}

// OpenSegment is not supported on this platform.
func OpenSegment(string) (*Segment, error) {
	return nil, fmt.Errorf("shm: open segment: %w", fifo.ErrUnsupported)
}

func unmapMemory([]byte) error {
	return fmt.Errorf("shm: munmap: %w", fifo.ErrUnsupported)
}
