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
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/markrussinovich/audiofifo/internal/fifo"
	"github.com/markrussinovich/audiofifo/internal/shm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// streamStats is the outcome of one stream run.
type streamStats struct {
	Written         int
	Read            int
	Lost            int
	Overflows       int
	Discontinuities int
	Elapsed         time.Duration
}

func newStreamCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream frames from a writer to a reader on a second mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := runStream(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), cfg, stats)
			return nil
		},
	}
	bindStreamFlags(cmd.Flags(), cfg)
	return cmd
}

// runStream creates a segment, maps it a second time as a reader would from
// another process, and moves cfg.Count frames across it. Frames of at least
// four bytes carry a sequence number that the reader checks against the
// reported losses.
func runStream(ctx context.Context, cfg *Config) (streamStats, error) {
	if cfg.Count <= 0 || cfg.Chunk <= 0 || cfg.ReadChunk <= 0 {
		return streamStats{}, errors.New("count, chunk and read-chunk must be positive")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	owner := shm.NewRegistry()
	defer owner.Close()
	seg, err := owner.Create(cfg.address())
	if err != nil {
		return streamStats{}, fmt.Errorf("create segment: %w", err)
	}
	seg.Waiter = cfg.waiter()

	// A separate registry gets its own mapping of the same file.
	peer := shm.NewRegistry()
	defer peer.Close()
	peerSeg, err := peer.Open(seg.Name)
	if err != nil {
		return streamStats{}, fmt.Errorf("open segment: %w", err)
	}
	peerSeg.Waiter = cfg.waiter()

	wf, err := seg.Fifo(fifo.WithRetries(cfg.Retries))
	if err != nil {
		return streamStats{}, err
	}
	rf, err := peerSeg.Fifo(fifo.WithRetries(cfg.Retries))
	if err != nil {
		return streamStats{}, err
	}
	w := fifo.NewWriter(wf)
	r := fifo.NewReader(rf, fifo.FlushOnOverflow(cfg.Flush))
	frameSize := int(cfg.FrameSize)

	var (
		stats       streamStats
		writerDone  atomic.Bool
		start       = time.Now()
		g, gctx     = errgroup.WithContext(ctx)
		stampFrames = frameSize >= 4
	)
	g.Go(func() error {
		defer writerDone.Store(true)
		buf := make([]byte, cfg.Chunk*frameSize)
		seq := uint32(0)
		for stats.Written < cfg.Count {
			if err := gctx.Err(); err != nil {
				return err
			}
			frames := min(cfg.Chunk, cfg.Count-stats.Written)
			if stampFrames {
				for i := 0; i < frames; i++ {
					binary.LittleEndian.PutUint32(buf[i*frameSize:], seq+uint32(i))
				}
			}
			n, err := w.Write(buf[:frames*frameSize], cfg.Timeout)
			if err != nil && !errors.Is(err, fifo.ErrTimedOut) {
				return fmt.Errorf("write: %w", err)
			}
			seq += uint32(n)
			stats.Written += n
		}
		return nil
	})
	g.Go(func() error {
		buf := make([]byte, cfg.ReadChunk*frameSize)
		next := uint32(0)
		for {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, lost, err := r.Read(buf, cfg.Timeout)
			stats.Lost += lost
			next += uint32(lost)
			switch {
			case errors.Is(err, fifo.ErrOverflow):
				stats.Overflows++
			case err != nil && !errors.Is(err, fifo.ErrTimedOut):
				return fmt.Errorf("read: %w", err)
			}
			if stampFrames {
				for i := 0; i < n; i++ {
					if got := binary.LittleEndian.Uint32(buf[i*frameSize:]); got != next {
						stats.Discontinuities++
						next = got
					}
					next++
				}
			}
			stats.Read += n
			if n == 0 && writerDone.Load() {
				avail, lost, _ := r.Available()
				stats.Lost += lost
				next += uint32(lost)
				if lost > 0 {
					stats.Overflows++
				} else if avail == 0 {
					return nil
				}
			}
		}
	})
	err = g.Wait()
	stats.Elapsed = time.Since(start)
	if err != nil {
		return stats, err
	}
	if rf.IsShutdown() {
		return stats, fifo.ErrShutdown
	}
	return stats, nil
}

func printStats(out io.Writer, cfg *Config, s streamStats) {
	fmt.Fprintf(out, "=== Stream (%d frames x %d bytes, throttle=%t, sync=%s) ===\n",
		cfg.Frames, cfg.FrameSize, cfg.Throttle, cfg.Sync)
	fmt.Fprintf(out, "written %d\n", s.Written)
	fmt.Fprintf(out, "read %d\n", s.Read)
	fmt.Fprintf(out, "lost %d in %d overflows\n", s.Lost, s.Overflows)
	if cfg.FrameSize >= 4 {
		fmt.Fprintf(out, "discontinuities %d\n", s.Discontinuities)
	}
	fmt.Fprintf(out, "elapsed %v", s.Elapsed)
	if secs := s.Elapsed.Seconds(); secs > 0 {
		fmt.Fprintf(out, " (%.0f frames/s)", float64(s.Read)/secs)
	}
	fmt.Fprintln(out)
}
