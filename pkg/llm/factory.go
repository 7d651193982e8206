// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/packlabs/kennel/pkg/types"
)

// Provider names a Generator implementation.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderHeuristic Provider = "heuristic"
)

// FromProvider builds a Generator by name. Unknown providers are an error;
// an empty provider defaults to heuristic so the system runs offline.
func FromProvider(provider Provider, cfg AnthropicConfig, logger *zap.Logger) (types.Generator, error) {
	switch provider {
	case ProviderAnthropic:
		cfg.Logger = logger
		return NewAnthropicGenerator(cfg)
	case ProviderHeuristic, "":
		return NewHeuristicGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}
