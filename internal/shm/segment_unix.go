//go:build unix

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
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// CreateSegment creates and maps a new segment for a FIFO of frameCount
// frames of frameSize bytes. The index words start at zero.
func CreateSegment(name string, frameCount, frameSize uint32, throttled bool) (*Segment, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	totalSize, err := CalculateLayout(frameCount, frameSize)
	if err != nil {
		return nil, err
	}

	path := segmentPath(name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrSegmentExists, path)
		}
		return nil, fmt.Errorf("shm: create segment file %s: %w", path, err)
	}
	cleanup := func() {
		file.Close()
		os.Remove(path)
	}

	// Truncate zero-fills, which is also the initial value of both indices.
	if err := file.Truncate(int64(totalSize)); err != nil {
		cleanup()
		return nil, fmt.Errorf("shm: resize segment file: %w", err)
	}
	mem, err := mmapFile(file, int(totalSize))
	if err != nil {
		cleanup()
		return nil, err
	}

	seg := &Segment{File: file, Mem: mem, Path: path, Name: name, Waiter: defaultWaiter()}
	seg.Header().init(frameCount, frameSize, throttled, totalSize)
	if logger.V(2) {
		logger.Infof("shm: created segment %s frames=%d frameSize=%d throttled=%t size=%d",
			path, frameCount, frameSize, throttled, totalSize)
	}
	return seg, nil
}

// OpenSegment maps an existing segment and validates its header.
func OpenSegment(name string) (*Segment, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	var (
		file *os.File
		path string
		err  error
	)
	for _, path = range segmentPaths(name) {
		if file, err = os.OpenFile(path, os.O_RDWR, 0); err == nil {
			break
		}
	}
	if file == nil {
		return nil, fmt.Errorf("shm: open segment %s: %w", name, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("shm: stat segment file: %w", err)
	}
	size := info.Size()
	if size < DataOffset {
		file.Close()
		return nil, fmt.Errorf("shm: segment file too small: %d bytes", size)
	}

	mem, err := mmapFile(file, int(size))
	if err != nil {
		file.Close()
		return nil, err
	}
	seg := &Segment{File: file, Mem: mem, Path: path, Name: name, Waiter: defaultWaiter()}
	if err := ValidateSegmentHeader(seg.Header(), uint64(size)); err != nil {
		seg.Close()
		return nil, err
	}
	seg.Header().setPeerPID(uint32(os.Getpid()))
	return seg, nil
}

func mmapFile(file *os.File, size int) ([]byte, error) {
	data, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap: %w", err)
	}
	return data, nil
}

func unmapMemory(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("shm: munmap: %w", err)
	}
	return nil
}
