//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

// Package hemi implements secret-shared matrix multiplication with
// matrix triples. The engine keeps the preprocessing material of each
// matrix shape in a cache owned by the engine, and falls back to dot
// products when the triples are not worth their setup cost.
package hemi

import (
	"github.com/markkurossi/mpcproto/env"
	"github.com/markkurossi/mpcproto/field"
	"github.com/markkurossi/mpcproto/p2p"
	"github.com/markkurossi/mpcproto/proc"
	"github.com/markkurossi/mpcproto/protocol"
	jww "github.com/spf13/jwalterweatherman"
)

// Protocol defines the operations the engine needs from the
// underlying multiplication protocol.
type Protocol[S any] interface {
	protocol.Protocol[S]
	protocol.Opener[S]

	Zero() S
	Constant(c field.Element) S
	RandomsInst(n int) ([]S, error)
	Shuffler() protocol.Shuffler[S]
	MaybeCheck() error
	Party() p2p.Player
}

// MatrixPrep provides matrix triples of one shape.
type MatrixPrep[S any] interface {
	Shape() Shape
	// Triple returns the next unused triple.
	Triple() (Triple[S], error)
	Close() error
}

// Generator creates preprocessing material for matrix shapes.
type Generator[S any] interface {
	Generate(shape Shape) (MatrixPrep[S], error)
}

// Engine implements the matrix multiplication engine.
type Engine[S protocol.Linear[S]] struct {
	proto    Protocol[S]
	gen      Generator[S]
	cfg      *env.Config
	shuffler protocol.Shuffler[S]
	preps    map[Shape]MatrixPrep[S]
	usage    Usage
	closed   bool
}

// New creates a new matrix engine.
func New[S protocol.Linear[S]](proto Protocol[S], gen Generator[S],
	cfg *env.Config) (*Engine[S], error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine[S]{
		proto:    proto,
		gen:      gen,
		cfg:      cfg,
		shuffler: proto.Shuffler(),
		preps:    make(map[Shape]MatrixPrep[S]),
		usage:    newUsage(),
	}
	jww.INFO.Printf("hemi: %s: new engine, generator %T\n", e.label(), gen)
	return e, nil
}

func (e *Engine[S]) label() string {
	return p2p.Label(e.proto.Party().ID())
}

// GetMatrixPrep returns the preprocessing material of the shape. The
// material is generated on the first request and the same instance is
// returned for all later requests. Generation failures are not cached
// and not retried here.
func (e *Engine[S]) GetMatrixPrep(shape Shape) (MatrixPrep[S], error) {
	if e.closed {
		return nil, ErrClosed
	}
	if shape.Valid() {
		e.usage.Requests[shape]++
		e.usage.RequestedElements += uint64(shape.Elements())
	}
	prep, ok := e.preps[shape]
	if ok {
		return prep, nil
	}
	jww.DEBUG.Printf("hemi: %s: generating preprocessing for %v\n",
		e.label(), shape)
	prep, err := e.gen.Generate(shape)
	if err != nil {
		return nil, prepError(shape, err)
	}
	e.preps[shape] = prep
	e.usage.Misses++
	return prep, nil
}

// Cached tests if the engine holds preprocessing material for the
// shape.
func (e *Engine[S]) Cached(shape Shape) bool {
	_, ok := e.preps[shape]
	return ok
}

// UsePlainMatmul tests if the product of the shape should be computed
// with dot products instead of matrix triples. The processor options
// can force either path. Otherwise the decision compares the cost
// model of both paths; the setup cost of the triples is charged only
// for shapes that are not cached yet.
func (e *Engine[S]) UsePlainMatmul(shape Shape, p *proc.Processor[S]) bool {
	if p != nil {
		switch p.Options.Matmul {
		case proc.MatmulPlain:
			return true
		case proc.MatmulHE:
			return false
		}
	}
	cost := e.cfg.GetCost()
	r := float64(shape.Rows)
	k := float64(shape.Inner)
	c := float64(shape.Cols)

	he := cost.HEPerTriple + cost.OpenCost*(r*k+k*c)
	if !e.Cached(shape) {
		he += cost.HESetup
	}
	plain := cost.PlainPerProduct * r * k * c

	return plain <= he
}

// MatrixMultiply computes the product of the secret matrices a and b.
func (e *Engine[S]) MatrixMultiply(a, b Matrix[S], p *proc.Processor[S]) (
	Matrix[S], error) {

	if err := a.check("left operand"); err != nil {
		return Matrix[S]{}, err
	}
	if err := b.check("right operand"); err != nil {
		return Matrix[S]{}, err
	}
	if a.Cols != b.Rows {
		return Matrix[S]{}, &DimensionError{
			Op:       "inner dimension",
			Expected: a.Cols,
			Actual:   b.Rows,
		}
	}
	shape := Shape{
		Rows:  a.Rows,
		Inner: a.Cols,
		Cols:  b.Cols,
	}
	var result Matrix[S]
	var err error
	if e.UsePlainMatmul(shape, p) {
		result, err = plainMultiply(e.proto, a, b)
		if err != nil {
			return Matrix[S]{}, err
		}
		e.usage.PlainProducts += uint64(shape.Rows * shape.Inner * shape.Cols)
	} else {
		result, err = e.tripleMultiply(shape, a, b)
		if err != nil {
			return Matrix[S]{}, err
		}
	}
	if err := e.proto.MaybeCheck(); err != nil {
		return Matrix[S]{}, err
	}
	return result, nil
}

// plainMultiply computes a·b with one dot product per result element.
func plainMultiply[S any](proto Protocol[S], a, b Matrix[S]) (
	Matrix[S], error) {

	proto.InitDotProd()
	for i := 0; i < a.Rows; i++ {
		for j := 0; j < b.Cols; j++ {
			for k := 0; k < a.Cols; k++ {
				proto.PrepareDotProd(a.At(i, k), b.At(k, j))
			}
			proto.NextDotProd()
		}
	}
	if err := proto.Exchange(); err != nil {
		return Matrix[S]{}, err
	}
	result := NewMatrix[S](a.Rows, b.Cols)
	for i := range result.Data {
		result.Data[i] = proto.FinalizeDotProd(a.Cols)
	}
	return result, nil
}

// tripleMultiply computes a·b with a matrix triple (X, Y, Z). The
// masked operands E = a-X and F = b-Y are opened in one round, and the
// product is Z + E·Y + X·F + E·F.
func (e *Engine[S]) tripleMultiply(shape Shape, a, b Matrix[S]) (
	Matrix[S], error) {

	prep, err := e.GetMatrixPrep(shape)
	if err != nil {
		return Matrix[S]{}, err
	}
	t, err := prep.Triple()
	if err != nil {
		return Matrix[S]{}, prepError(shape, err)
	}
	if t.Shape() != shape {
		return Matrix[S]{}, prepError(shape,
			&DimensionError{
				Op:       "triple elements",
				Expected: shape.Elements(),
				Actual:   t.Shape().Elements(),
			})
	}
	e.usage.Triples[shape]++
	e.usage.Elements += uint64(shape.Elements())

	masked := make([]S, 0, len(a.Data)+len(b.Data))
	for i, v := range a.Data {
		masked = append(masked, v.Sub(t.X.Data[i]))
	}
	for i, v := range b.Data {
		masked = append(masked, v.Sub(t.Y.Data[i]))
	}
	opened, err := e.proto.Open(masked)
	if err != nil {
		return Matrix[S]{}, err
	}
	em := &field.Matrix{
		Rows: shape.Rows,
		Cols: shape.Inner,
		Data: opened[:len(a.Data)],
	}
	fm := &field.Matrix{
		Rows: shape.Inner,
		Cols: shape.Cols,
		Data: opened[len(a.Data):],
	}
	ef, err := em.Mul(fm)
	if err != nil {
		return Matrix[S]{}, err
	}

	result := NewMatrix[S](shape.Rows, shape.Cols)
	for i := 0; i < shape.Rows; i++ {
		for j := 0; j < shape.Cols; j++ {
			acc := t.Z.At(i, j).Add(e.proto.Constant(ef.At(i, j)))
			for k := 0; k < shape.Inner; k++ {
				acc = acc.Add(t.Y.At(k, j).Scale(em.At(i, k)))
				acc = acc.Add(t.X.At(i, k).Scale(fm.At(k, j)))
			}
			result.Set(i, j, acc)
		}
	}
	return result, nil
}

// Matmulsm multiplies the matrices read from the source memory and
// writes the product to the processor's registers.
func (e *Engine[S]) Matmulsm(p *proc.Processor[S], source []S,
	args proc.MatmulArgs) error {

	if err := args.Validate(); err != nil {
		return err
	}
	av, err := proc.Read(source, args.A, args.Rows*args.Inner)
	if err != nil {
		return err
	}
	bv, err := proc.Read(source, args.B, args.Inner*args.Cols)
	if err != nil {
		return err
	}
	if _, err := p.ReadRegisters(args.Dest, args.Rows*args.Cols); err != nil {
		return err
	}
	a := Matrix[S]{
		Rows: args.Rows,
		Cols: args.Inner,
		Data: append([]S(nil), av...),
	}
	b := Matrix[S]{
		Rows: args.Inner,
		Cols: args.Cols,
		Data: append([]S(nil), bv...),
	}
	result, err := e.MatrixMultiply(a, b, p)
	if err != nil {
		return err
	}
	return p.WriteRegisters(args.Dest, result.Data)
}

// Conv2ds computes the 2-D convolution of the input registers with
// the weight registers. The input patches are arranged into a matrix
// with one row per output position and multiplied by the weight
// column. Taps that fall into the padding are zero.
func (e *Engine[S]) Conv2ds(p *proc.Processor[S], args proc.Conv2dArgs) error {
	if err := args.Validate(); err != nil {
		return err
	}
	input, err := p.ReadRegisters(args.Input, args.InputSize())
	if err != nil {
		return err
	}
	weights, err := p.ReadRegisters(args.Weights, args.WeightSize())
	if err != nil {
		return err
	}
	if _, err := p.ReadRegisters(args.Dest, args.OutputSize()); err != nil {
		return err
	}

	outH := args.OutH()
	outW := args.OutW()
	zero := e.proto.Zero()

	patches := NewMatrix[S](args.OutputSize(), args.WeightSize())
	for b := 0; b < args.Batch; b++ {
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				row := (b*outH+oy)*outW + ox
				for ky := 0; ky < args.WH; ky++ {
					iy := oy*args.StrideH - args.PadH + ky
					for kx := 0; kx < args.WW; kx++ {
						ix := ox*args.StrideW - args.PadW + kx
						inside := iy >= 0 && iy < args.InH &&
							ix >= 0 && ix < args.InW
						for c := 0; c < args.InC; c++ {
							col := (ky*args.WW+kx)*args.InC + c
							if inside {
								idx := ((b*args.InH+iy)*args.InW+ix)*args.InC + c
								patches.Set(row, col, input[idx])
							} else {
								patches.Set(row, col, zero)
							}
						}
					}
				}
			}
		}
	}
	w := Matrix[S]{
		Rows: args.WeightSize(),
		Cols: 1,
		Data: append([]S(nil), weights...),
	}
	result, err := e.MatrixMultiply(patches, w, p)
	if err != nil {
		return err
	}
	return p.WriteRegisters(args.Dest, result.Data)
}

// RandomsInst writes args.Count random shares to the registers.
func (e *Engine[S]) RandomsInst(p *proc.Processor[S],
	args proc.RandomArgs) error {

	if _, err := p.ReadRegisters(args.Dest, args.Count); err != nil {
		return err
	}
	values, err := e.proto.RandomsInst(args.Count)
	if err != nil {
		return err
	}
	return p.WriteRegisters(args.Dest, values)
}

// Shuffle shuffles the values with the protocol's shuffler.
func (e *Engine[S]) Shuffle(values []S) ([]S, error) {
	return e.shuffler.Shuffle(values)
}

// Usage returns a snapshot of the preprocessing usage.
func (e *Engine[S]) Usage() Usage {
	return e.usage.clone()
}

// Close releases all cached preprocessing material. It returns the
// first error from the preps but closes all of them.
func (e *Engine[S]) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	var result error
	for shape, prep := range e.preps {
		if err := prep.Close(); err != nil && result == nil {
			result = err
		}
		delete(e.preps, shape)
	}
	jww.INFO.Printf("hemi: %s: engine closed: %v\n", e.label(), e.usage)
	return result
}
