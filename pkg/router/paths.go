// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package router

import "github.com/packlabs/kennel/pkg/types"

// lightningPaths is the deterministic domain → primary-voter seed table.
// The guardian sits on every path: veto coverage must not depend on the
// bandit keeping it.
var lightningPaths = map[string][]types.DogName{
	"security": {
		types.DogGuardian, types.DogCynic, types.DogJanitor, types.DogDeployer,
		types.DogArchitect, types.DogAnalyst, types.DogSage,
	},
	"code": {
		types.DogGuardian, types.DogArchitect, types.DogScholar, types.DogJanitor,
		types.DogCynic, types.DogSage, types.DogDeployer, types.DogCartographer,
	},
	"market": {
		types.DogGuardian, types.DogAnalyst, types.DogOracle, types.DogScout,
		types.DogCynic, types.DogSage, types.DogCartographer,
	},
	"ops": {
		types.DogGuardian, types.DogDeployer, types.DogJanitor, types.DogArchitect,
		types.DogScout, types.DogCynic, types.DogCartographer,
	},
	"general": {
		types.DogGuardian, types.DogSage, types.DogScholar, types.DogCartographer,
		types.DogScout, types.DogOracle, types.DogAnalyst, types.DogCynic,
	},
}

// domainMinWeight is the per-domain minimum summed Thompson weight a voter
// variant must draw to stay in contention.
var domainMinWeight = map[string]float64{
	"security": 2.2,
	"code":     2.0,
	"market":   1.8,
	"ops":      1.8,
	"general":  1.5,
}

// PathFor returns the static voter seed for a domain. Unknown domains get
// the general path. The returned slice is a copy.
func PathFor(domain string) []types.DogName {
	path, ok := lightningPaths[domain]
	if !ok {
		path = lightningPaths["general"]
	}
	out := make([]types.DogName, len(path))
	copy(out, path)
	return out
}

// minWeightFor returns the domain's variant admission threshold.
func minWeightFor(domain string) float64 {
	if w, ok := domainMinWeight[domain]; ok {
		return w
	}
	return domainMinWeight["general"]
}
