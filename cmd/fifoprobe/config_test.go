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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "probe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newTestFlags(cfg *Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	bindSegmentFlags(fs, cfg)
	bindStreamFlags(fs, cfg)
	return fs
}

func TestConfigFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
name: mic0
frames: 2049
frame_size: 6
throttle: false
sync: poll
poll_interval: 250us
count: 1000
timeout: 2s
`)
	cfg := defaultConfig()
	fs := newTestFlags(&cfg)
	require.NoError(t, fs.Parse(nil))
	require.NoError(t, applyConfigFile(fs, path, &cfg))

	require.Equal(t, "mic0", cfg.Name)
	require.Equal(t, uint32(2049), cfg.Frames)
	require.Equal(t, uint32(6), cfg.FrameSize)
	require.False(t, cfg.Throttle)
	require.Equal(t, "poll", cfg.Sync)
	require.Equal(t, 250*time.Microsecond, cfg.PollInterval)
	require.Equal(t, 1000, cfg.Count)
	require.Equal(t, 2*time.Second, cfg.Timeout)
	// Keys absent from the file keep their defaults.
	require.Equal(t, defaultConfig().Chunk, cfg.Chunk)
	require.Equal(t, defaultConfig().Retries, cfg.Retries)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := writeConfig(t, "frames: 2049\nframe_size: 6\nchunk: 10\n")
	cfg := defaultConfig()
	fs := newTestFlags(&cfg)
	require.NoError(t, fs.Parse([]string{"--frames", "512", "--chunk=7"}))
	require.NoError(t, applyConfigFile(fs, path, &cfg))

	require.Equal(t, uint32(512), cfg.Frames, "explicit flag must win")
	require.Equal(t, 7, cfg.Chunk, "explicit flag must win")
	require.Equal(t, uint32(6), cfg.FrameSize, "file value applies when the flag is unset")
}

func TestConfigFileErrors(t *testing.T) {
	cfg := defaultConfig()
	fs := newTestFlags(&cfg)
	require.Error(t, applyConfigFile(fs, filepath.Join(t.TempDir(), "missing.yaml"), &cfg))
	require.Error(t, applyConfigFile(fs, writeConfig(t, "frames: [1, 2]\n"), &cfg))
	require.NoError(t, applyConfigFile(fs, "", &cfg))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "poll", mutate: func(c *Config) { c.Sync = "poll" }},
		{name: "unknown sync", mutate: func(c *Config) { c.Sync = "spin" }, wantErr: true},
		{name: "zero frames", mutate: func(c *Config) { c.Frames = 0 }, wantErr: true},
		{name: "too large", mutate: func(c *Config) { c.Frames, c.FrameSize = 1<<30, 4 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestUnthrottledSyncFallsBackToPoll(t *testing.T) {
	cfg := defaultConfig()
	cfg.Sync = "futex"
	require.Empty(t, cfg.unthrottledSync(), "throttled runs keep futex")
	require.Equal(t, "futex", cfg.Sync)

	cfg.Throttle = false
	require.Contains(t, cfg.unthrottledSync(), "--sync=poll")
	require.Equal(t, "poll", cfg.Sync)
	require.Empty(t, cfg.unthrottledSync(), "already polling")
}
