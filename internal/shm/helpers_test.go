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
	"fmt"
	"strings"
	"testing"
	"time"
)

// testSegmentName returns a name unique to this test run.
func testSegmentName(t *testing.T) string {
	t.Helper()
	base := strings.NewReplacer("/", "-", " ", "_").Replace(t.Name())
	return fmt.Sprintf("test-%s-%d", base, time.Now().UnixNano())
}

// createTestSegment creates a segment with a unique name and registers
// cleanup so it is unmapped and removed even if the test fails.
func createTestSegment(t *testing.T, frameCount, frameSize uint32, throttled bool) *Segment {
	t.Helper()
	name := testSegmentName(t)
	RemoveSegment(name)
	seg, err := CreateSegment(name, frameCount, frameSize, throttled)
	if err != nil {
		t.Fatalf("Failed to create test segment %s: %v", name, err)
	}
	t.Cleanup(func() {
		seg.Close()
		RemoveSegment(name)
	})
	return seg
}

// openTestSegment maps an existing segment a second time.
func openTestSegment(t *testing.T, name string) *Segment {
	t.Helper()
	seg, err := OpenSegment(name)
	if err != nil {
		t.Fatalf("Failed to open segment %s: %v", name, err)
	}
	t.Cleanup(func() { seg.Close() })
	return seg
}
