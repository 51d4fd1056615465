//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package field

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArithmetic(t *testing.T) {
	a := New(P - 1)
	b := New(2)

	assert.Equal(t, Element(1), a.Add(b))
	assert.Equal(t, Element(P-3), a.Sub(b))
	assert.Equal(t, Element(3), b.Sub(a))
	assert.Equal(t, Element(1), a.Neg())
	assert.Equal(t, Element(0), Element(0).Neg())
	assert.Equal(t, Element(P-2), a.Mul(b))
	assert.Equal(t, Element(1), a.Mul(a))
	assert.Equal(t, FromInt(-5), New(5).Neg())
}

func TestInverse(t *testing.T) {
	for i := 0; i < 100; i++ {
		e, err := Random(rand.Reader)
		require.NoError(t, err)
		if e.IsZero() {
			continue
		}
		inv, err := e.Inverse()
		require.NoError(t, err)
		assert.Equal(t, Element(1), e.Mul(inv))
	}
	_, err := Element(0).Inverse()
	assert.Error(t, err)
}

func TestExp(t *testing.T) {
	e := New(123456789)
	assert.Equal(t, Element(1), e.Exp(P-1))
	assert.Equal(t, e.Mul(e).Mul(e), e.Exp(3))
	assert.Equal(t, Element(1), e.Exp(0))
}

func TestEncoding(t *testing.T) {
	v, err := RandomVector(rand.Reader, 17)
	require.NoError(t, err)

	data := Marshal(v)
	assert.Len(t, data, 17*ByteSize)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = Unmarshal(data[:5])
	assert.Error(t, err)

	_, err = Decode([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	assert.Error(t, err)
}

func TestLagrange(t *testing.T) {
	// f(x) = 7 + 3x + 2x^2
	f := func(x Element) Element {
		return New(7).Add(New(3).Mul(x)).Add(New(2).Mul(x).Mul(x))
	}
	xs := []Element{1, 2, 3}
	coeffs, err := Lagrange(xs, 0)
	require.NoError(t, err)

	var sum Element
	for i, x := range xs {
		sum = sum.Add(coeffs[i].Mul(f(x)))
	}
	assert.Equal(t, New(7), sum)

	coeffs, err = Lagrange(xs, 5)
	require.NoError(t, err)
	sum = 0
	for i, x := range xs {
		sum = sum.Add(coeffs[i].Mul(f(x)))
	}
	assert.Equal(t, f(5), sum)
}

func TestMatrixMul(t *testing.T) {
	a := &Matrix{Rows: 2, Cols: 3, Data: []Element{1, 2, 3, 4, 5, 6}}
	b := &Matrix{Rows: 3, Cols: 1, Data: []Element{1, 0, 2}}

	c, err := a.Mul(b)
	require.NoError(t, err)
	assert.Equal(t, []Element{7, 16}, c.Data)

	_, err = b.Mul(b)
	assert.Error(t, err)
}
