//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package proc

import (
	"github.com/pkg/errors"
)

// MatmulArgs define the arguments of the matrix multiplication
// instruction. The matrices A and B are read from memory in row-major
// order and the Rows×Cols result is written to the registers at
// Dest.
type MatmulArgs struct {
	Dest  int
	A     int
	B     int
	Rows  int
	Inner int
	Cols  int
}

// Validate checks the matrix dimensions.
func (a MatmulArgs) Validate() error {
	if a.Rows <= 0 || a.Inner <= 0 || a.Cols <= 0 {
		return errors.Errorf("proc: invalid matmul dimensions %dx%dx%d",
			a.Rows, a.Inner, a.Cols)
	}
	return nil
}

// Conv2dArgs define the arguments of the 2-D convolution
// instruction. The input is Batch×InH×InW×InC and the weights are
// WH×WW×InC, both in row-major order in the registers. The output is
// Batch×OutH×OutW with one output channel.
type Conv2dArgs struct {
	Dest    int
	Input   int
	Weights int

	Batch int
	InH   int
	InW   int
	InC   int

	WH int
	WW int

	StrideH int
	StrideW int
	PadH    int
	PadW    int
}

// OutH returns the output height.
func (a Conv2dArgs) OutH() int {
	return (a.InH+2*a.PadH-a.WH)/a.StrideH + 1
}

// OutW returns the output width.
func (a Conv2dArgs) OutW() int {
	return (a.InW+2*a.PadW-a.WW)/a.StrideW + 1
}

// InputSize returns the number of input elements.
func (a Conv2dArgs) InputSize() int {
	return a.Batch * a.InH * a.InW * a.InC
}

// WeightSize returns the number of weight elements.
func (a Conv2dArgs) WeightSize() int {
	return a.WH * a.WW * a.InC
}

// OutputSize returns the number of output elements.
func (a Conv2dArgs) OutputSize() int {
	return a.Batch * a.OutH() * a.OutW()
}

// Validate checks the convolution geometry.
func (a Conv2dArgs) Validate() error {
	if a.Batch <= 0 || a.InH <= 0 || a.InW <= 0 || a.InC <= 0 {
		return errors.Errorf("proc: invalid conv2d input %dx%dx%dx%d",
			a.Batch, a.InH, a.InW, a.InC)
	}
	if a.WH <= 0 || a.WW <= 0 {
		return errors.Errorf("proc: invalid conv2d weights %dx%d", a.WH, a.WW)
	}
	if a.StrideH <= 0 || a.StrideW <= 0 {
		return errors.Errorf("proc: invalid conv2d stride %dx%d",
			a.StrideH, a.StrideW)
	}
	if a.PadH < 0 || a.PadW < 0 {
		return errors.Errorf("proc: invalid conv2d padding %dx%d",
			a.PadH, a.PadW)
	}
	if a.InH+2*a.PadH < a.WH || a.InW+2*a.PadW < a.WW {
		return errors.Errorf("proc: conv2d weights %dx%d larger than input",
			a.WH, a.WW)
	}
	return nil
}

// RandomArgs define the arguments of the random share instruction.
type RandomArgs struct {
	Dest  int
	Count int
}
