//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package hemi

import (
	"github.com/markkurossi/mpcproto/protocol"
)

// ProtocolGenerator creates matrix triples with the multiplication
// protocol itself: X and Y are random shares and Z is computed with
// dot products. It needs no extra setup and serves as the reference
// generator for the homomorphic ones.
type ProtocolGenerator[S protocol.Linear[S]] struct {
	proto Protocol[S]
}

// NewProtocolGenerator creates a generator over the protocol.
func NewProtocolGenerator[S protocol.Linear[S]](proto Protocol[S]) *ProtocolGenerator[S] {
	return &ProtocolGenerator[S]{
		proto: proto,
	}
}

// Generate implements Generator.Generate.
func (gen *ProtocolGenerator[S]) Generate(shape Shape) (MatrixPrep[S], error) {
	if !shape.Valid() {
		return nil, &DimensionError{
			Op:       "shape " + shape.String(),
			Expected: 1,
			Actual:   min(shape.Rows, shape.Inner, shape.Cols),
		}
	}
	prep := &protocolPrep[S]{
		gen:   gen,
		shape: shape,
	}
	t, err := gen.triple(shape)
	if err != nil {
		return nil, err
	}
	prep.buffered = append(prep.buffered, t)
	return prep, nil
}

func (gen *ProtocolGenerator[S]) triple(shape Shape) (Triple[S], error) {
	x, err := gen.proto.RandomsInst(shape.Rows * shape.Inner)
	if err != nil {
		return Triple[S]{}, err
	}
	y, err := gen.proto.RandomsInst(shape.Inner * shape.Cols)
	if err != nil {
		return Triple[S]{}, err
	}
	t := Triple[S]{
		X: Matrix[S]{
			Rows: shape.Rows,
			Cols: shape.Inner,
			Data: x,
		},
		Y: Matrix[S]{
			Rows: shape.Inner,
			Cols: shape.Cols,
			Data: y,
		},
	}
	t.Z, err = plainMultiply(gen.proto, t.X, t.Y)
	if err != nil {
		return Triple[S]{}, err
	}
	return t, nil
}

type protocolPrep[S protocol.Linear[S]] struct {
	gen      *ProtocolGenerator[S]
	shape    Shape
	buffered []Triple[S]
	closed   bool
}

func (prep *protocolPrep[S]) Shape() Shape {
	return prep.shape
}

func (prep *protocolPrep[S]) Triple() (Triple[S], error) {
	if prep.closed {
		return Triple[S]{}, ErrClosed
	}
	if len(prep.buffered) > 0 {
		t := prep.buffered[0]
		prep.buffered = prep.buffered[1:]
		return t, nil
	}
	return prep.gen.triple(prep.shape)
}

func (prep *protocolPrep[S]) Close() error {
	prep.closed = true
	prep.buffered = nil
	return nil
}
