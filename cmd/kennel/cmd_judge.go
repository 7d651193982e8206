// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/packlabs/kennel/pkg/config"
	"github.com/packlabs/kennel/pkg/types"
)

var judgeKind string

var judgeCmd = &cobra.Command{
	Use:   "judge [body]",
	Short: "Judge a single item and print the verdict as JSON",
	Long: `Runs one item through the full pipeline. The body comes from the
argument, or from stdin when no argument is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		// One-shot runs never want a stray db file next to the binary.
		if cfg.DBPath == "kennel.db" {
			cfg.DBPath = ":memory:"
		}
		logger, err := buildLogger("error")
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		var body string
		if len(args) == 1 {
			body = args[0]
		} else {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			body = strings.TrimSpace(string(data))
		}
		if body == "" {
			return fmt.Errorf("nothing to judge: empty body")
		}

		p, err := buildPipeline(cfg, logger, false)
		if err != nil {
			return err
		}
		defer p.shutdown()

		resp, err := p.orch.Submit(context.Background(), &types.Item{
			Kind: types.ItemKind(judgeKind),
			Body: body,
		})
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	judgeCmd.Flags().StringVar(&judgeKind, "kind", string(types.ItemFreeText), "item kind (code_review, token_analysis, pattern_detection, tool_invocation, free_text)")
}
