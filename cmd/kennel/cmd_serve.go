// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/packlabs/kennel/pkg/config"
	"github.com/packlabs/kennel/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the judgment service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err := buildLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		p, err := buildPipeline(cfg, logger, true)
		if err != nil {
			return err
		}
		if err := p.start(); err != nil {
			p.shutdown()
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := server.New(p.orch, logger)
		err = srv.Run(ctx, cfg.HTTPAddr)

		logger.Info("shutting down")
		p.shutdown()
		if err != nil {
			logger.Error("server exited", zap.Error(err))
		}
		return nil
	},
}
