package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Run untrusted scripts with bounded time and memory",
	Long: `sandbox executes short JavaScript programs in an isolated runtime with a
curated set of modules (math, random, re, time, string, itertools, gfx),
a wall-clock timeout and a memory ceiling.

Settings come from sandbox.yaml (or --config) and SANDBOX_* environment
variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default ./sandbox.yaml or $HOME/.sandbox/sandbox.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
