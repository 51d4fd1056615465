//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

// Package env implements global environment for the MPC system.
package env

import (
	"crypto/rand"
	"io"

	"github.com/pkg/errors"
)

// Default configuration values.
const (
	DefaultCheckBatch = 1024
	DefaultCheckBytes = 16 * 1024 * 1024
)

// Config defines the global system configuration for the MPC system.
// It configures system operation for all MPC modules. Config must not
// be modified after being passed to any MPC module.  It is safe for
// concurrent use by multiple modules as they do not modify it.
type Config struct {
	Rand    io.Reader
	Verbose bool

	// CheckBatch is the number of buffered MAC'd shares that triggers
	// a MAC check. Zero selects DefaultCheckBatch.
	CheckBatch int

	// CheckBytes is the number of bytes communicated since the last
	// MAC check that triggers a new check. Zero selects
	// DefaultCheckBytes and math.MaxUint64 disables the byte trigger.
	CheckBytes uint64

	// Cost is the cost model of the matrix multiplication engine.
	Cost CostModel
}

// CostModel defines the relative costs of the matrix multiplication
// strategies. The units are arbitrary but must be consistent.
type CostModel struct {
	// HESetup is the one-time cost of generating the preprocessing
	// material for a new matrix shape.
	HESetup float64
	// HEPerTriple is the cost of consuming one matrix triple.
	HEPerTriple float64
	// OpenCost is the cost of opening one masked matrix element.
	OpenCost float64
	// PlainPerProduct is the cost of one secret-shared product on the
	// plain path.
	PlainPerProduct float64
}

// DefaultCostModel is used when the configuration has a zero cost
// model.
var DefaultCostModel = CostModel{
	HESetup:         50000,
	HEPerTriple:     2000,
	OpenCost:        2,
	PlainPerProduct: 4,
}

// GetRandom returns the source of entropy for share dealing, key
// generation, and other cryptography operations.
func (config *Config) GetRandom() io.Reader {
	if config != nil && config.Rand != nil {
		return config.Rand
	}
	return rand.Reader
}

// GetCheckBatch returns the MAC check batch threshold.
func (config *Config) GetCheckBatch() int {
	if config == nil || config.CheckBatch == 0 {
		return DefaultCheckBatch
	}
	return config.CheckBatch
}

// GetCheckBytes returns the MAC check communication threshold.
func (config *Config) GetCheckBytes() uint64 {
	if config == nil || config.CheckBytes == 0 {
		return DefaultCheckBytes
	}
	return config.CheckBytes
}

// GetCost returns the matrix multiplication cost model.
func (config *Config) GetCost() CostModel {
	if config == nil || config.Cost == (CostModel{}) {
		return DefaultCostModel
	}
	return config.Cost
}

// Validate checks the configuration values.
func (config *Config) Validate() error {
	if config == nil {
		return nil
	}
	if config.CheckBatch < 0 {
		return errors.Errorf("env: invalid check batch %d", config.CheckBatch)
	}
	c := config.Cost
	if c.HESetup < 0 || c.HEPerTriple < 0 || c.OpenCost < 0 ||
		c.PlainPerProduct < 0 {
		return errors.Errorf("env: negative cost model value: %+v", c)
	}
	return nil
}
