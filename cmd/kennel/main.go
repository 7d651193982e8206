// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Command kennel runs the collective judgment service: a 36-dimension
// judgment engine, an eleven-dog consensus pack, and a learning router,
// wired over an in-process event fabric.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "kennel",
		Short: "Collective judgment orchestrator",
		Long: `kennel scores items across 36 dimensions, runs weighted consensus
over an eleven-dog pack, and learns routing policy from feedback.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (optional; env vars use the KENNEL_ prefix)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(judgeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildLogger creates the process logger at the configured level.
func buildLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
