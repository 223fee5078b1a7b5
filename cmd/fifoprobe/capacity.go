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

package main

import (
	"fmt"
	"io"

	"github.com/markrussinovich/audiofifo/internal/fifo"
	"github.com/markrussinovich/audiofifo/internal/shm"
	"github.com/spf13/cobra"
)

func newCapacityCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "capacity",
		Short: "Measure how many frames a FIFO accepts before backpressure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapacity(cmd.OutOrStdout(), cfg)
		},
	}
}

func runCapacity(out io.Writer, cfg *Config) error {
	reg := shm.NewRegistry()
	defer reg.Close()

	seg, err := reg.Create(cfg.address())
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}
	seg.Waiter = cfg.waiter()
	f, err := seg.Fifo(fifo.WithRetries(cfg.Retries))
	if err != nil {
		return err
	}
	w, r := fifo.NewWriter(f), fifo.NewReader(f)
	frameCount := int(f.FrameCount())
	frameSize := int(f.FrameSize())

	fmt.Fprintf(out, "=== FIFO Geometry ===\n")
	fmt.Fprintf(out, "Segment: %s (%d bytes mapped)\n", seg.Path, len(seg.Mem))
	fmt.Fprintf(out, "%s\n", f.State())

	fmt.Fprintf(out, "\n=== Single Write Tests ===\n")
	for _, frames := range []int{1, 2, 16, 100, frameCount - 1, frameCount, frameCount + 1} {
		if frames <= 0 {
			continue
		}
		n, err := w.Write(make([]byte, frames*frameSize), fifo.NoWait)
		if err != nil {
			return fmt.Errorf("write %d frames: %w", frames, err)
		}
		fmt.Fprintf(out, "Write %d frames: accepted %d\n", frames, n)
		if _, _, err := r.Flush(); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
	}

	fmt.Fprintf(out, "\n=== Backpressure Test ===\n")
	chunk := cfg.Chunk
	if chunk <= 0 || chunk > frameCount {
		chunk = frameCount
	}
	data := make([]byte, chunk*frameSize)
	total := 0
	// An unthrottled writer never sees backpressure; stop after two laps.
	for limit := 2*frameCount + chunk; total < limit; {
		n, err := w.Write(data, fifo.NoWait)
		if err != nil {
			return fmt.Errorf("write after %d frames: %w", total, err)
		}
		if n == 0 {
			fmt.Fprintf(out, "Full after %d frames (capacity %d)\n", total, frameCount)
			return nil
		}
		total += n
	}
	fmt.Fprintf(out, "No backpressure after %d frames: writer overwrites unread frames\n", total)
	return nil
}
