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

// Package shm places a frame FIFO in a named shared memory segment so that a
// writer and its readers can live in different processes.
package shm

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"unsafe"

	"github.com/markrussinovich/audiofifo/internal/fifo"
	"google.golang.org/grpc/grpclog"
)

var logger = grpclog.Component("audiofifo")

// Memory layout constants
const (
	// SegmentMagic identifies an audio FIFO segment.
	SegmentMagic = "AUFIFO\x00\x00"

	// SegmentVersion is the current layout version.
	SegmentVersion = uint32(1)

	// SegmentHeaderSize is the size of the fixed header.
	SegmentHeaderSize = 128

	// RearOffset and FrontOffset place each index word on its own cache
	// line so the writer and the throttling reader do not share one.
	RearOffset  = 128
	FrontOffset = 192

	// DataOffset is where the frame arena starts.
	DataOffset = 256

	// FlagThrottled is set when the reader throttles the writer.
	FlagThrottled = uint32(1)

	segmentPrefix = "audiofifo_"
)

// ErrSegmentExists is returned when creating a segment whose name is taken.
var ErrSegmentExists = errors.New("shm: segment already exists")

// SegmentHeader is the fixed header at the start of a segment.
type SegmentHeader struct {
	magic      [8]byte  // 0x00: "AUFIFO\0\0"
	version    uint32   // 0x08: layout version
	flags      uint32   // 0x0C: FlagThrottled
	totalSize  uint64   // 0x10: mapped size in bytes
	frameCount uint32   // 0x18: capacity in frames
	frameSize  uint32   // 0x1C: bytes per frame
	dataOff    uint64   // 0x20: offset of the frame arena
	creatorPID uint32   // 0x28: process that created the segment
	peerPID    uint32   // 0x2C: last process that opened it
	reserved   [80]byte // 0x30-0x7F
}

// Magic returns the magic bytes
func (h *SegmentHeader) Magic() [8]byte { return h.magic }

// Version returns the layout version
func (h *SegmentHeader) Version() uint32 { return atomic.LoadUint32(&h.version) }

// Flags returns the segment flags
func (h *SegmentHeader) Flags() uint32 { return atomic.LoadUint32(&h.flags) }

// Throttled reports whether FlagThrottled is set.
func (h *SegmentHeader) Throttled() bool { return h.Flags()&FlagThrottled != 0 }

// TotalSize returns the mapped size
func (h *SegmentHeader) TotalSize() uint64 { return atomic.LoadUint64(&h.totalSize) }

// FrameCount returns the capacity in frames
func (h *SegmentHeader) FrameCount() uint32 { return atomic.LoadUint32(&h.frameCount) }

// FrameSize returns the frame size in bytes
func (h *SegmentHeader) FrameSize() uint32 { return atomic.LoadUint32(&h.frameSize) }

// DataOffset returns the offset of the frame arena
func (h *SegmentHeader) DataOffset() uint64 { return atomic.LoadUint64(&h.dataOff) }

// CreatorPID returns the creating process ID
func (h *SegmentHeader) CreatorPID() uint32 { return atomic.LoadUint32(&h.creatorPID) }

// PeerPID returns the process ID of the last opener
func (h *SegmentHeader) PeerPID() uint32 { return atomic.LoadUint32(&h.peerPID) }

func (h *SegmentHeader) setPeerPID(pid uint32) { atomic.StoreUint32(&h.peerPID, pid) }

// init fills in a fresh header. The magic is written last because openers
// check it first.
func (h *SegmentHeader) init(frameCount, frameSize uint32, throttled bool, totalSize uint64) {
	atomic.StoreUint32(&h.version, SegmentVersion)
	var flags uint32
	if throttled {
		flags |= FlagThrottled
	}
	atomic.StoreUint32(&h.flags, flags)
	atomic.StoreUint64(&h.totalSize, totalSize)
	atomic.StoreUint32(&h.frameCount, frameCount)
	atomic.StoreUint32(&h.frameSize, frameSize)
	atomic.StoreUint64(&h.dataOff, DataOffset)
	atomic.StoreUint32(&h.creatorPID, uint32(os.Getpid()))
	copy(h.magic[:], SegmentMagic)
}

// CalculateLayout returns the total segment size for a FIFO of frameCount
// frames of frameSize bytes.
func CalculateLayout(frameCount, frameSize uint32) (totalSize uint64, err error) {
	if frameCount == 0 || frameSize == 0 {
		return 0, fmt.Errorf("shm: invalid geometry %d frames of %d bytes", frameCount, frameSize)
	}
	if frameCount > math.MaxInt32/frameSize {
		return 0, fmt.Errorf("shm: %d frames of %d bytes exceeds %d bytes", frameCount, frameSize, math.MaxInt32)
	}
	return alignTo64(DataOffset + uint64(frameCount)*uint64(frameSize)), nil
}

// alignTo64 aligns a size to 64-byte boundary
func alignTo64(size uint64) uint64 {
	return (size + 63) &^ 63
}

// ValidateSegmentHeader checks h against the layout it claims and the size
// of the mapping it was read from.
func ValidateSegmentHeader(h *SegmentHeader, mappedSize uint64) error {
	if string(h.magic[:]) != SegmentMagic {
		return fmt.Errorf("shm: invalid magic bytes %q", h.magic[:])
	}
	if v := h.Version(); v != SegmentVersion {
		return fmt.Errorf("shm: unsupported version %d, expected %d", v, SegmentVersion)
	}
	expected, err := CalculateLayout(h.FrameCount(), h.FrameSize())
	if err != nil {
		return err
	}
	if h.DataOffset() != DataOffset {
		return fmt.Errorf("shm: data offset mismatch: got %d, expected %d", h.DataOffset(), DataOffset)
	}
	if h.TotalSize() != expected {
		return fmt.Errorf("shm: total size mismatch: got %d, expected %d", h.TotalSize(), expected)
	}
	if mappedSize < expected {
		return fmt.Errorf("shm: mapping of %d bytes is smaller than segment size %d", mappedSize, expected)
	}
	return nil
}

// Segment is a mapped shared memory segment holding one FIFO.
type Segment struct {
	File *os.File // backing file
	Mem  []byte   // mapped region
	Path string
	Name string

	// Waiter is used by Fifo for both index words. CreateSegment and
	// OpenSegment set it to a shared futex where available.
	Waiter fifo.Waiter
}

// Header returns the typed view of the segment header.
func (s *Segment) Header() *SegmentHeader {
	return (*SegmentHeader)(unsafe.Pointer(&s.Mem[0]))
}

func (s *Segment) word(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&s.Mem[off]))
}

// Indices returns the published rear and front index values.
func (s *Segment) Indices() (rear, front uint32) {
	return atomic.LoadUint32(s.word(RearOffset)), atomic.LoadUint32(s.word(FrontOffset))
}

// Fifo returns a FIFO over the segment's index words and arena. Every
// process that maps the segment builds its own Fifo; at most one of them
// may create a Writer.
func (s *Segment) Fifo(opts ...fifo.Option) (*fifo.Fifo, error) {
	if s.Mem == nil {
		return nil, fmt.Errorf("shm: segment %s is closed", s.Name)
	}
	h := s.Header()
	rear, err := fifo.NewIndex(s.word(RearOffset), s.Waiter)
	if err != nil {
		return nil, fmt.Errorf("shm: rear index: %w", err)
	}
	var front *fifo.Index
	if h.Throttled() {
		if front, err = fifo.NewIndex(s.word(FrontOffset), s.Waiter); err != nil {
			return nil, fmt.Errorf("shm: front index: %w", err)
		}
	}
	start := h.DataOffset()
	end := start + uint64(h.FrameCount())*uint64(h.FrameSize())
	opts = append([]fifo.Option{fifo.WithIndices(rear, front)}, opts...)
	return fifo.New(h.FrameCount(), h.FrameSize(), s.Mem[start:end], opts...)
}

// Close unmaps the memory and closes the file. The segment file itself is
// left in place; see RemoveSegment.
func (s *Segment) Close() error {
	var firstErr error
	if s.Mem != nil {
		if err := unmapMemory(s.Mem); err != nil {
			firstErr = err
		}
		s.Mem = nil
	}
	if s.File != nil {
		if err := s.File.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("shm: close segment %s: %w", s.Name, err)
		}
		s.File = nil
	}
	return firstErr
}

func defaultWaiter() fifo.Waiter {
	if fifo.FutexSupported {
		return fifo.FutexWaiter{Shared: true}
	}
	return fifo.PollWaiter{}
}

func validateName(name string) error {
	if name == "" || strings.ContainsRune(name, '/') || name == "." || name == ".." {
		return fmt.Errorf("shm: invalid segment name %q", name)
	}
	return nil
}

func segmentPaths(name string) []string {
	return []string{
		filepath.Join("/dev/shm", segmentPrefix+name),
		filepath.Join(os.TempDir(), segmentPrefix+name),
	}
}

// segmentPath returns where a new segment named name is created: /dev/shm
// when available, the temp directory otherwise.
func segmentPath(name string) string {
	paths := segmentPaths(name)
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return paths[0]
	}
	return paths[1]
}

// RemoveSegment removes the segment file named name.
func RemoveSegment(name string) error {
	var lastErr error
	for _, path := range segmentPaths(name) {
		err := os.Remove(path)
		if err == nil {
			return nil
		}
		if !os.IsNotExist(err) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("shm: remove segment %s: %w", name, lastErr)
	}
	return fmt.Errorf("shm: remove segment %s: %w", name, os.ErrNotExist)
}

// SegmentExists reports whether a segment file named name exists.
func SegmentExists(name string) bool {
	for _, path := range segmentPaths(name) {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}
