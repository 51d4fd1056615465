//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package field

import (
	"github.com/pkg/errors"
)

// Matrix implements a dense row-major matrix of public field
// elements.
type Matrix struct {
	Rows int
	Cols int
	Data []Element
}

// NewMatrix creates a zero matrix.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{
		Rows: rows,
		Cols: cols,
		Data: make([]Element, rows*cols),
	}
}

// At returns the element at row r and column c.
func (m *Matrix) At(r, c int) Element {
	return m.Data[r*m.Cols+c]
}

// Set sets the element at row r and column c.
func (m *Matrix) Set(r, c int, v Element) {
	m.Data[r*m.Cols+c] = v
}

// Mul returns the product m*o.
func (m *Matrix) Mul(o *Matrix) (*Matrix, error) {
	if m.Cols != o.Rows {
		return nil, errors.Errorf("field: matrix mismatch: %dx%d * %dx%d",
			m.Rows, m.Cols, o.Rows, o.Cols)
	}
	result := NewMatrix(m.Rows, o.Cols)
	for r := 0; r < m.Rows; r++ {
		for l := 0; l < m.Cols; l++ {
			a := m.At(r, l)
			if a == 0 {
				continue
			}
			for c := 0; c < o.Cols; c++ {
				idx := r*result.Cols + c
				result.Data[idx] = result.Data[idx].Add(a.Mul(o.At(l, c)))
			}
		}
	}
	return result, nil
}
