//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package rep3

import (
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/markkurossi/mpcproto/field"
	"github.com/markkurossi/mpcproto/internal/mpctest"
	"github.com/markkurossi/mpcproto/p2p"
	"github.com/markkurossi/mpcproto/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, fn func(p *Protocol) error) {
	mpctest.Run(t, NumParties, func(party *p2p.Party) error {
		proto, err := New(party, nil)
		if err != nil {
			return err
		}
		return fn(proto)
	})
}

func elements(vals ...int64) []field.Element {
	result := make([]field.Element, len(vals))
	for i, v := range vals {
		result[i] = field.FromInt(v)
	}
	return result
}

func expect(got, want []field.Element) error {
	if len(got) != len(want) {
		return fmt.Errorf("got %d values, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			return fmt.Errorf("value %d: got %v, want %v", i, got[i], want[i])
		}
	}
	return nil
}

func TestInputOpen(t *testing.T) {
	want := elements(1, -2, 3, 1<<40)
	run(t, func(p *Protocol) error {
		shares, err := p.Input(1, want, len(want))
		if err != nil {
			return err
		}
		got, err := p.Open(shares)
		if err != nil {
			return err
		}
		return expect(got, want)
	})
}

func TestMul(t *testing.T) {
	xs := elements(3, 5, -7, 0)
	ys := elements(4, 6, 8, 9)
	want := elements(12, 30, -56, 0)

	run(t, func(p *Protocol) error {
		x, err := p.Input(0, xs, len(xs))
		if err != nil {
			return err
		}
		y, err := p.Input(2, ys, len(ys))
		if err != nil {
			return err
		}
		p.InitMul()
		for i := range x {
			p.PrepareMul(x[i], y[i], -1)
		}
		if err := p.Exchange(); err != nil {
			return err
		}
		var z []Share
		for range x {
			z = append(z, p.FinalizeMul(-1))
		}
		got, err := p.Open(z)
		if err != nil {
			return err
		}
		return expect(got, want)
	})
}

func TestDotProd(t *testing.T) {
	xs := elements(1, 2, 3, 4)
	ys := elements(5, 6, 7, 8)

	run(t, func(p *Protocol) error {
		x, err := p.Input(0, xs, len(xs))
		if err != nil {
			return err
		}
		y, err := p.Input(1, ys, len(ys))
		if err != nil {
			return err
		}
		p.InitDotProd()
		for i := range x {
			p.PrepareDotProd(x[i], y[i])
		}
		p.NextDotProd()
		p.PrepareDotProd(x[0], y[3])
		p.PrepareDotProd(p.Constant(field.New(10)), y[0])
		p.NextDotProd()
		if err := p.Exchange(); err != nil {
			return err
		}
		d0 := p.FinalizeDotProd(4)
		d1 := p.FinalizeDotProd(2)
		got, err := p.Open([]Share{d0, d1})
		if err != nil {
			return err
		}
		return expect(got, elements(70, 58))
	})
}

func TestEmptyExchange(t *testing.T) {
	run(t, func(p *Protocol) error {
		before := p.party.Stats().Sum()
		if err := p.Exchange(); err != nil {
			return err
		}
		if p.party.Stats().Sum() != before {
			return errors.New("empty exchange communicated")
		}
		return nil
	})
}

func TestFinalizeUnderflow(t *testing.T) {
	run(t, func(p *Protocol) (err error) {
		defer func() {
			r := recover()
			seq, ok := r.(*protocol.SequenceError)
			if !ok {
				err = fmt.Errorf("expected SequenceError, got %v", r)
				return
			}
			if seq.Op != "rep3 mul" {
				err = fmt.Errorf("unexpected op %q", seq.Op)
			}
		}()
		p.PrepareMul(p.Zero(), p.Zero(), -1)
		p.FinalizeMul(-1)
		return nil
	})
}

func TestRandoms(t *testing.T) {
	run(t, func(p *Protocol) error {
		r := p.Randoms(16)
		// Opening checks that the replicated components agree.
		_, err := p.Open(r)
		return err
	})
}

func TestInconsistentOpen(t *testing.T) {
	errs, err := mpctest.RunAll(NumParties, func(party *p2p.Party) error {
		p, err := New(party, nil)
		if err != nil {
			return err
		}
		shares, err := p.Input(0, elements(42), 1)
		if err != nil {
			return err
		}
		if p.id == 1 {
			shares[0].B = shares[0].B.Add(field.New(1))
		}
		_, err = p.Open(shares)
		return err
	})
	require.NoError(t, err)
	assert.ErrorIs(t, errs[0], protocol.ErrInconsistentOpen)
}

func TestBranch(t *testing.T) {
	run(t, func(p *Protocol) error {
		b := p.Branch("mac")
		x := b.Randoms(2)
		y := p.Randoms(2)
		b.PrepareMul(x[0], x[1], -1)
		if err := b.Exchange(); err != nil {
			return err
		}
		z := b.FinalizeMul(-1)

		vals, err := p.Open([]Share{x[0], x[1], z, y[0]})
		if err != nil {
			return err
		}
		if vals[0].Mul(vals[1]) != vals[2] {
			return errors.New("branch product mismatch")
		}
		return nil
	})
}

func TestShuffle(t *testing.T) {
	values := elements(10, 20, 30, 40, 50, 60, 70, 80,
		90, 100, 110, 120, 130, 140, 150, 160)
	run(t, func(p *Protocol) error {
		var orders [][]field.Element
		for round := 0; round < 2; round++ {
			x, err := p.Input(0, values, len(values))
			if err != nil {
				return err
			}
			y, err := p.Input(0, values, len(values))
			if err != nil {
				return err
			}
			cols, err := p.PairShuffler().ShuffleColumns([][]Share{x, y})
			if err != nil {
				return err
			}
			opened, err := p.Open(append(cols[0], cols[1]...))
			if err != nil {
				return err
			}
			a := opened[:len(values)]
			b := opened[len(values):]
			// Both columns use the same permutation.
			if err := expect(a, b); err != nil {
				return err
			}
			sorted := append([]field.Element(nil), a...)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})
			if err := expect(sorted, values); err != nil {
				return err
			}
			if expect(a, values) == nil {
				return fmt.Errorf("shuffle %d kept the input order", round)
			}
			orders = append(orders, a)
		}
		if expect(orders[0], orders[1]) == nil {
			return fmt.Errorf("two shuffles gave the same order: %v", orders[0])
		}
		return nil
	})
}
