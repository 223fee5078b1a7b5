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
	"sync"

	"github.com/google/uuid"
)

// ErrRegistryClosed is returned by a Registry after Close.
var ErrRegistryClosed = errors.New("shm: registry closed")

type registryEntry struct {
	seg   *Segment
	refs  int
	owned bool // created here; the file is removed on last release
}

// Registry tracks the segments a process has created or opened, sharing one
// mapping per name. It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
	closed  bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// Create creates a segment for addr and holds one reference to it. An empty
// name is replaced by a generated one, available as the segment's Name.
func (r *Registry) Create(addr Address) (*Segment, error) {
	name := addr.Name
	if name == "" {
		name = uuid.NewString()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if _, ok := r.entries[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSegmentExists, name)
	}
	seg, err := CreateSegment(name, addr.FrameCount, addr.FrameSize, addr.Throttled)
	if err != nil {
		return nil, err
	}
	r.entries[name] = &registryEntry{seg: seg, refs: 1, owned: true}
	return seg, nil
}

// Open returns the segment named name, mapping it if this registry does not
// hold it yet, and takes a reference.
func (r *Registry) Open(name string) (*Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if e, ok := r.entries[name]; ok {
		e.refs++
		return e.seg, nil
	}
	seg, err := OpenSegment(name)
	if err != nil {
		return nil, err
	}
	r.entries[name] = &registryEntry{seg: seg, refs: 1}
	return seg, nil
}

// Lookup returns the segment named name without taking a reference.
func (r *Registry) Lookup(name string) (*Segment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.seg, true
}

// Release drops one reference. The last release unmaps the segment and,
// if this registry created it, removes the file.
func (r *Registry) Release(name string) error {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("shm: segment %s not registered", name)
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return nil
	}
	delete(r.entries, name)
	r.mu.Unlock()
	return e.close(name)
}

// Close releases every segment regardless of reference counts.
func (r *Registry) Close() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.closed = true
	r.mu.Unlock()

	var errs []error
	for name, e := range entries {
		if err := e.close(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *registryEntry) close(name string) error {
	err := e.seg.Close()
	if e.owned {
		if rerr := RemoveSegment(name); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = errors.Join(err, rerr)
		}
	}
	if err != nil {
		logger.Warningf("shm: closing segment %s: %v", name, err)
	}
	return err
}
