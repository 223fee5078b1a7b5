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
	"errors"
	"fmt"
	"io"

	"github.com/markrussinovich/audiofifo/internal/shm"
	"github.com/spf13/cobra"
)

func newStateCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "state [name]",
		Short: "Print the header and indices of an existing segment",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := cfg.Name
			if len(args) == 1 {
				name = args[0]
			}
			if name == "" {
				return errors.New("state needs a segment name")
			}
			return printState(cmd.OutOrStdout(), name)
		},
	}
}

func printState(out io.Writer, name string) error {
	seg, err := shm.OpenSegment(name)
	if err != nil {
		return err
	}
	defer seg.Close()

	h := seg.Header()
	rear, front := seg.Indices()
	fmt.Fprintf(out, "=== Segment %s ===\n", seg.Name)
	fmt.Fprintf(out, "Path: %s\n", seg.Path)
	fmt.Fprintf(out, "Version: %d\n", h.Version())
	fmt.Fprintf(out, "Size: %d bytes (data at %d)\n", h.TotalSize(), h.DataOffset())
	fmt.Fprintf(out, "Frames: %d x %d bytes\n", h.FrameCount(), h.FrameSize())
	fmt.Fprintf(out, "Throttled: %t\n", h.Throttled())
	fmt.Fprintf(out, "Creator PID: %d\n", h.CreatorPID())
	fmt.Fprintf(out, "Peer PID: %d\n", h.PeerPID())
	fmt.Fprintf(out, "Rear: %d\n", rear)
	if h.Throttled() {
		fmt.Fprintf(out, "Front: %d\n", front)
	}

	f, err := seg.Fifo()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "State: %s\n", f.State())
	return nil
}
