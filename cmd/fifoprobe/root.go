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

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cfg := defaultConfig()
	var configPath string

	root := &cobra.Command{
		Use:   "fifoprobe",
		Short: "fifoprobe exercises shared memory audio FIFOs",
		Long: `fifoprobe creates, streams through and inspects shared memory frame FIFOs.
Settings are read from --config (YAML) and overridden by flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := applyConfigFile(cmd.Flags(), configPath, &cfg); err != nil {
				return err
			}
			if note := cfg.unthrottledSync(); note != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), note)
			}
			return cfg.validate()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	bindSegmentFlags(root.PersistentFlags(), &cfg)

	root.AddCommand(newCapacityCmd(&cfg), newStreamCmd(&cfg), newStateCmd(&cfg))
	return root
}

// Execute runs the probe and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
