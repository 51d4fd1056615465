//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

// Package field implements arithmetic in the prime field GF(p) where
// p = 2^59 - 2^28 + 1. The prime is NTT-friendly (p = 1 mod 2^28) and
// smaller than the 60-bit ciphertext moduli, so the same modulus
// serves as the plaintext modulus of the BGV preprocessing.
package field

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"

	"github.com/cronokirby/saferith"
	"github.com/pkg/errors"
)

// P is the field modulus.
const P uint64 = 0x7fffffff0000001

// Bits is the bit length of P.
const Bits = 59

// ByteSize is the size of the encoded field element.
const ByteSize = 8

const randMask = (uint64(1) << Bits) - 1

var modulus = saferith.ModulusFromUint64(P)

// Element is an element of GF(P). The zero value is the field zero.
type Element uint64

// New creates a field element from the value v reduced modulo P.
func New(v uint64) Element {
	return Element(v % P)
}

// FromInt creates a field element from a signed integer.
func FromInt(v int64) Element {
	if v < 0 {
		return New(uint64(-v)).Neg()
	}
	return New(uint64(v))
}

// Uint64 returns the canonical representative of the element.
func (e Element) Uint64() uint64 {
	return uint64(e)
}

// Add returns e+o.
func (e Element) Add(o Element) Element {
	s := uint64(e) + uint64(o)
	if s >= P {
		s -= P
	}
	return Element(s)
}

// Sub returns e-o.
func (e Element) Sub(o Element) Element {
	if e >= o {
		return e - o
	}
	return Element(P - uint64(o) + uint64(e))
}

// Neg returns -e.
func (e Element) Neg() Element {
	if e == 0 {
		return 0
	}
	return Element(P - uint64(e))
}

// Mul returns e*o.
func (e Element) Mul(o Element) Element {
	hi, lo := bits.Mul64(uint64(e), uint64(o))
	return Element(bits.Rem64(hi, lo, P))
}

// Inverse returns the multiplicative inverse of e. The inverse of
// zero is an error.
func (e Element) Inverse() (Element, error) {
	if e == 0 {
		return 0, errors.New("field: inverse of zero")
	}
	x := new(saferith.Nat).SetUint64(uint64(e))
	return Element(new(saferith.Nat).ModInverse(x, modulus).Uint64()), nil
}

// Exp returns e^n.
func (e Element) Exp(n uint64) Element {
	x := new(saferith.Nat).SetUint64(uint64(e))
	y := new(saferith.Nat).SetUint64(n)
	return Element(new(saferith.Nat).Exp(x, y, modulus).Uint64())
}

// IsZero tests if the element is zero.
func (e Element) IsZero() bool {
	return e == 0
}

// Equal tests if the elements are equal.
func (e Element) Equal(o Element) bool {
	return e == o
}

func (e Element) String() string {
	return fmt.Sprintf("%d", uint64(e))
}

// Bytes appends the big-endian encoding of the element to buf.
func (e Element) Bytes(buf []byte) []byte {
	return binary.BigEndian.AppendUint64(buf, uint64(e))
}

// Decode decodes an element from the beginning of data.
func Decode(data []byte) (Element, error) {
	if len(data) < ByteSize {
		return 0, errors.Errorf("field: truncated element: %d bytes",
			len(data))
	}
	v := binary.BigEndian.Uint64(data)
	if v >= P {
		return 0, errors.Errorf("field: non-canonical element %x", v)
	}
	return Element(v), nil
}

// Random samples a uniformly random element from the entropy source.
func Random(r io.Reader) (Element, error) {
	var buf [ByteSize]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		v := binary.BigEndian.Uint64(buf[:]) & randMask
		if v < P {
			return Element(v), nil
		}
	}
}

// RandomVector samples n random elements.
func RandomVector(r io.Reader, n int) ([]Element, error) {
	result := make([]Element, n)
	for i := range result {
		e, err := Random(r)
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// Marshal encodes the vector as concatenated big-endian elements.
func Marshal(v []Element) []byte {
	buf := make([]byte, 0, len(v)*ByteSize)
	for _, e := range v {
		buf = e.Bytes(buf)
	}
	return buf
}

// Unmarshal decodes a vector encoded with Marshal.
func Unmarshal(data []byte) ([]Element, error) {
	if len(data)%ByteSize != 0 {
		return nil, errors.Errorf("field: invalid vector length %d",
			len(data))
	}
	result := make([]Element, len(data)/ByteSize)
	for i := range result {
		e, err := Decode(data[i*ByteSize:])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// Lagrange computes the Lagrange coefficients for interpolating the
// value at point x from the evaluation points xs.
func Lagrange(xs []Element, x Element) ([]Element, error) {
	result := make([]Element, len(xs))
	for i, xi := range xs {
		num := Element(1)
		den := Element(1)
		for j, xj := range xs {
			if i == j {
				continue
			}
			num = num.Mul(x.Sub(xj))
			den = den.Mul(xi.Sub(xj))
		}
		inv, err := den.Inverse()
		if err != nil {
			return nil, errors.Wrapf(err, "field: duplicate point %v", xi)
		}
		result[i] = num.Mul(inv)
	}
	return result, nil
}
