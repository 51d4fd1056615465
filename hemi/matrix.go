//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package hemi

import (
	"fmt"
)

// Shape defines the dimensions of a matrix product: a Rows×Inner
// matrix multiplied by an Inner×Cols matrix.
type Shape struct {
	Rows  int
	Inner int
	Cols  int
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Rows, s.Inner, s.Cols)
}

// Valid tests if all dimensions are positive.
func (s Shape) Valid() bool {
	return s.Rows > 0 && s.Inner > 0 && s.Cols > 0
}

// Elements returns the number of matrix elements in a triple of the
// shape.
func (s Shape) Elements() int {
	return s.Rows*s.Inner + s.Inner*s.Cols + s.Rows*s.Cols
}

// Matrix is a row-major matrix of shares.
type Matrix[S any] struct {
	Rows int
	Cols int
	Data []S
}

// NewMatrix creates a rows×cols matrix of zero value shares.
func NewMatrix[S any](rows, cols int) Matrix[S] {
	return Matrix[S]{
		Rows: rows,
		Cols: cols,
		Data: make([]S, rows*cols),
	}
}

// At returns the element at row r and column c.
func (m Matrix[S]) At(r, c int) S {
	return m.Data[r*m.Cols+c]
}

// Set sets the element at row r and column c.
func (m Matrix[S]) Set(r, c int, v S) {
	m.Data[r*m.Cols+c] = v
}

func (m Matrix[S]) check(op string) error {
	if m.Rows <= 0 || m.Cols <= 0 {
		return &DimensionError{
			Op:       op + " dimensions",
			Expected: 1,
			Actual:   min(m.Rows, m.Cols),
		}
	}
	if len(m.Data) != m.Rows*m.Cols {
		return &DimensionError{
			Op:       op + " data",
			Expected: m.Rows * m.Cols,
			Actual:   len(m.Data),
		}
	}
	return nil
}

// Triple is a matrix multiplication triple: Z = X·Y.
type Triple[S any] struct {
	X Matrix[S]
	Y Matrix[S]
	Z Matrix[S]
}

// Shape returns the shape of the triple.
func (t Triple[S]) Shape() Shape {
	return Shape{
		Rows:  t.X.Rows,
		Inner: t.X.Cols,
		Cols:  t.Y.Cols,
	}
}
