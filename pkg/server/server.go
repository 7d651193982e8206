// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package server exposes the judgment pipeline over HTTP: submit items,
// fetch judgments, post feedback, health, and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/packlabs/kennel/pkg/orchestrator"
	"github.com/packlabs/kennel/pkg/storage"
	"github.com/packlabs/kennel/pkg/types"
)

// Server is the HTTP ingress over the orchestrator.
type Server struct {
	orch   *orchestrator.Orchestrator
	engine *gin.Engine
	logger *zap.Logger
	http   *http.Server
}

// New builds the server and its routes.
func New(orch *orchestrator.Orchestrator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{orch: orch, engine: engine, logger: logger}

	v1 := engine.Group("/v1")
	{
		v1.POST("/judgments", s.submitJudgment)
		v1.GET("/judgments/:id", s.getJudgment)
		v1.POST("/judgments/:id/feedback", s.postFeedback)
	}
	engine.GET("/healthz", s.health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return s
}

// Handler returns the underlying handler, for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http ingress listening", zap.String("addr", addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// submitRequest is the POST /v1/judgments body.
type submitRequest struct {
	Kind      string         `json:"kind"`
	Body      string         `json:"body" binding:"required"`
	Context   map[string]any `json:"context"`
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	Async     bool           `json:"async"`
}

func (s *Server) submitJudgment(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item := &types.Item{
		Kind:      itemKind(req.Kind),
		Body:      req.Body,
		Context:   req.Context,
		UserID:    req.UserID,
		SessionID: req.SessionID,
	}

	if req.Async {
		ticket := s.orch.SubmitAsync(item)
		c.JSON(http.StatusAccepted, gin.H{"ticket": ticket})
		return
	}

	resp, err := s.orch.Submit(c.Request.Context(), item)
	if err != nil {
		s.logger.Error("submission failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getJudgment(c *gin.Context) {
	resp, err := s.orch.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "judgment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// feedbackRequest is the POST /v1/judgments/:id/feedback body.
type feedbackRequest struct {
	Outcome string `json:"outcome" binding:"required"`
	Note    string `json:"note"`
}

func (s *Server) postFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome := types.FeedbackOutcome(req.Outcome)
	switch outcome {
	case types.FeedbackCorrect, types.FeedbackIncorrect, types.FeedbackPartial:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "outcome must be correct, incorrect, or partial"})
		return
	}

	err := s.orch.Feedback(c.Request.Context(), c.Param("id"), outcome, req.Note)
	if err != nil {
		if errors.Is(err, orchestrator.ErrUnknownJudgment) || errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "judgment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "recorded"})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.Health())
}

func itemKind(kind string) types.ItemKind {
	switch types.ItemKind(kind) {
	case types.ItemCodeReview, types.ItemTokenAnalysis, types.ItemPatternDetection, types.ItemToolInvocation:
		return types.ItemKind(kind)
	default:
		return types.ItemFreeText
	}
}
