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
	"os"
	"time"

	"github.com/markrussinovich/audiofifo/internal/fifo"
	"github.com/markrussinovich/audiofifo/internal/shm"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds every probe setting. Values come from the defaults, then the
// YAML file named by --config, then flags given on the command line.
type Config struct {
	Name         string        `yaml:"name"`
	Frames       uint32        `yaml:"frames"`
	FrameSize    uint32        `yaml:"frame_size"`
	Throttle     bool          `yaml:"throttle"`
	Sync         string        `yaml:"sync"` // "futex" or "poll"
	PollInterval time.Duration `yaml:"poll_interval"`
	Retries      int           `yaml:"retries"`

	// stream
	Count     int           `yaml:"count"`
	Chunk     int           `yaml:"chunk"`
	ReadChunk int           `yaml:"read_chunk"`
	Timeout   time.Duration `yaml:"timeout"`
	Flush     bool          `yaml:"flush"`
}

func defaultConfig() Config {
	sync := "poll"
	if fifo.FutexSupported {
		sync = "futex"
	}
	return Config{
		Frames:       shm.DefaultFrameCount,
		FrameSize:    shm.DefaultFrameSize,
		Throttle:     true,
		Sync:         sync,
		PollInterval: fifo.DefaultPollInterval,
		Retries:      fifo.DefaultRetries,
		Count:        48000,
		Chunk:        480,
		ReadChunk:    256,
		Timeout:      100 * time.Millisecond,
	}
}

func bindSegmentFlags(fs *pflag.FlagSet, c *Config) {
	fs.StringVar(&c.Name, "name", c.Name, "segment name (generated when empty)")
	fs.Uint32Var(&c.Frames, "frames", c.Frames, "FIFO capacity in frames")
	fs.Uint32Var(&c.FrameSize, "frame-size", c.FrameSize, "frame size in bytes")
	fs.BoolVar(&c.Throttle, "throttle", c.Throttle, "reader throttles the writer; false lets the writer overwrite")
	fs.StringVar(&c.Sync, "sync", c.Sync, "wait strategy: futex or poll")
	fs.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "sleep step of the poll strategy")
	fs.IntVar(&c.Retries, "retries", c.Retries, "retries when an index changes just before a wait")
}

func bindStreamFlags(fs *pflag.FlagSet, c *Config) {
	fs.IntVar(&c.Count, "count", c.Count, "frames to stream")
	fs.IntVar(&c.Chunk, "chunk", c.Chunk, "frames per write")
	fs.IntVar(&c.ReadChunk, "read-chunk", c.ReadChunk, "frames per read")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "per-call blocking timeout")
	fs.BoolVar(&c.Flush, "flush", c.Flush, "discard everything on overflow instead of keeping the newest frames")
}

// applyConfigFile loads path into c, which must be the struct bound to fs,
// and then re-applies the flags that were set explicitly so they win.
func applyConfigFile(fs *pflag.FlagSet, path string, c *Config) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	explicit := map[string]string{}
	fs.Visit(func(f *pflag.Flag) {
		explicit[f.Name] = f.Value.String()
	})
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	for name, value := range explicit {
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("flag --%s: %w", name, err)
		}
	}
	return nil
}

// validate checks the settings shared by every subcommand.
// unthrottledSync switches an unthrottled run to polling. An unthrottled
// writer never wakes readers, so a futex reader would sleep out every
// timeout. It returns a note for the user when it changed the setting.
func (c *Config) unthrottledSync() string {
	if c.Throttle || c.Sync != "futex" {
		return ""
	}
	c.Sync = "poll"
	return "note: unthrottled segments are never woken by the writer; using --sync=poll"
}

func (c *Config) validate() error {
	if _, err := shm.CalculateLayout(c.Frames, c.FrameSize); err != nil {
		return err
	}
	switch c.Sync {
	case "futex":
		if !fifo.FutexSupported {
			return fmt.Errorf("sync strategy futex: %w", fifo.ErrUnsupported)
		}
	case "poll":
	default:
		return fmt.Errorf("unknown sync strategy %q", c.Sync)
	}
	return nil
}

func (c *Config) waiter() fifo.Waiter {
	if c.Sync == "poll" {
		return fifo.PollWaiter{Interval: c.PollInterval}
	}
	return fifo.FutexWaiter{Shared: true}
}

func (c *Config) address() shm.Address {
	return shm.Address{Name: c.Name, FrameCount: c.Frames, FrameSize: c.FrameSize, Throttled: c.Throttle}
}
