//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package hemi

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrPreprocessing is returned when the preprocessing material of a
// matrix shape can't be produced.
var ErrPreprocessing = errors.New("hemi: preprocessing failed")

// ErrClosed is returned when preprocessing is requested from a closed
// engine or prep.
var ErrClosed = errors.New("hemi: closed")

// DimensionError is returned when the operand dimensions of a matrix
// operation do not match.
type DimensionError struct {
	Op       string
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("hemi: %s mismatch: expected %d, got %d",
		e.Op, e.Expected, e.Actual)
}

func prepError(shape Shape, err error) error {
	return errors.Wrapf(ErrPreprocessing, "shape %v: %v", shape, err)
}
