//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package spdzwise

import (
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/markkurossi/mpcproto/env"
	"github.com/markkurossi/mpcproto/field"
	"github.com/markkurossi/mpcproto/internal/mpctest"
	"github.com/markkurossi/mpcproto/p2p"
	"github.com/markkurossi/mpcproto/protocol"
	"github.com/markkurossi/mpcproto/rep3"
	"github.com/markkurossi/mpcproto/shamir"
	"github.com/markkurossi/mpcproto/shuffle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	shamirParties   = 5
	shamirThreshold = 2
)

func newRep3(party *p2p.Party, cfg *env.Config) (*Protocol[rep3.Share], error) {
	part, err := rep3.New(party, cfg)
	if err != nil {
		return nil, err
	}
	return New[rep3.Share](part, cfg)
}

func newShamir(party *p2p.Party, cfg *env.Config) (
	*Protocol[shamir.Share], error) {

	part, err := shamir.New(party, shamirThreshold, cfg)
	if err != nil {
		return nil, err
	}
	return New[shamir.Share](part, cfg)
}

// both runs the test over the replicated and the Shamir part
// schemes.
func both(t *testing.T, cfg *env.Config,
	fr func(p *Protocol[rep3.Share]) error,
	fs func(p *Protocol[shamir.Share]) error) {

	t.Run("rep3", func(t *testing.T) {
		mpctest.Run(t, rep3.NumParties, func(party *p2p.Party) error {
			p, err := newRep3(party, cfg)
			if err != nil {
				return err
			}
			return fr(p)
		})
	})
	t.Run("shamir", func(t *testing.T) {
		mpctest.Run(t, shamirParties, func(party *p2p.Party) error {
			p, err := newShamir(party, cfg)
			if err != nil {
				return err
			}
			return fs(p)
		})
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

func testMul[P protocol.Linear[P]](p *Protocol[P]) error {
	xs := elements(2, 3, 5, 7, -11)
	ys := elements(13, 17, 19, 23, 29)

	x, err := p.Input().Input(0, xs, len(xs))
	if err != nil {
		return err
	}
	y, err := p.Input().Input(1, ys, len(ys))
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
	var z []Share[P]
	for range x {
		z = append(z, p.FinalizeMul(-1))
	}
	got, err := p.Open(z)
	if err != nil {
		return err
	}
	if err := expect(got, elements(26, 51, 95, 161, -319)); err != nil {
		return err
	}
	return p.Check()
}

func TestMul(t *testing.T) {
	both(t, nil, testMul[rep3.Share], testMul[shamir.Share])
}

func testDotProd[P protocol.Linear[P]](p *Protocol[P]) error {
	xs := elements(1, 2, 3)
	ys := elements(4, 5, 6)

	x, err := p.Input().Input(0, xs, len(xs))
	if err != nil {
		return err
	}
	y, err := p.Input().Input(2, ys, len(ys))
	if err != nil {
		return err
	}
	p.InitDotProd()
	for i := range x {
		p.PrepareDotProd(x[i], y[i])
	}
	p.NextDotProd()
	p.PrepareDotProd(x[2], p.Constant(field.New(100)))
	p.NextDotProd()
	if err := p.Exchange(); err != nil {
		return err
	}
	d0 := p.FinalizeDotProd(3)
	d1 := p.FinalizeDotProd(1)

	got, err := p.Open([]Share[P]{d0, d1})
	if err != nil {
		return err
	}
	if err := expect(got, elements(32, 300)); err != nil {
		return err
	}
	return p.Check()
}

func TestDotProd(t *testing.T) {
	both(t, nil, testDotProd[rep3.Share], testDotProd[shamir.Share])
}

// exchangeMessages returns a test that runs one exchange of
// products and dot products and verifies that it sends one message
// to each of the scheme's peers.
func exchangeMessages[P protocol.Linear[P]](peers int) func(
	p *Protocol[P]) error {

	return func(p *Protocol[P]) error {
		r, err := p.RandomsInst(4)
		if err != nil {
			return err
		}
		before := p.Party().Stats().Flushed.Load()
		p.InitMul()
		p.PrepareMul(r[0], r[1], -1)
		p.PrepareMul(r[2], r[3], -1)
		p.InitDotProd()
		p.PrepareDotProd(r[0], r[2])
		p.PrepareDotProd(r[1], r[3])
		p.NextDotProd()
		if err := p.Exchange(); err != nil {
			return err
		}
		sent := p.Party().Stats().Flushed.Load() - before
		if sent != uint64(peers) {
			return fmt.Errorf("exchange sent %d messages, want %d",
				sent, peers)
		}
		p.FinalizeMul(-1)
		p.FinalizeMul(-1)
		p.FinalizeDotProd(2)
		return p.Check()
	}
}

func TestExchangeOneRound(t *testing.T) {
	both(t, nil, exchangeMessages[rep3.Share](1),
		exchangeMessages[shamir.Share](shamirParties-1))
}

func testFIFO[P protocol.Linear[P]](p *Protocol[P]) error {
	r, err := p.RandomsInst(8)
	if err != nil {
		return err
	}
	p.InitMul()
	for i := 0; i < 4; i++ {
		p.PrepareMul(r[2*i], r[2*i+1], -1)
	}
	if err := p.Exchange(); err != nil {
		return err
	}
	var z []Share[P]
	for i := 0; i < 4; i++ {
		z = append(z, p.FinalizeMul(-1))
	}
	vals, err := p.Open(append(r, z...))
	if err != nil {
		return err
	}
	for i := 0; i < 4; i++ {
		if vals[2*i].Mul(vals[2*i+1]) != vals[8+i] {
			return fmt.Errorf("result %d out of order", i)
		}
	}
	return p.Check()
}

func TestFIFO(t *testing.T) {
	both(t, nil, testFIFO[rep3.Share], testFIFO[shamir.Share])
}

func testEmptyExchange[P protocol.Linear[P]](p *Protocol[P]) error {
	before := p.Party().Stats().Sum()
	if err := p.Exchange(); err != nil {
		return err
	}
	if p.Party().Stats().Sum() != before {
		return errors.New("empty exchange communicated")
	}
	return nil
}

func TestEmptyExchange(t *testing.T) {
	both(t, nil, testEmptyExchange[rep3.Share], testEmptyExchange[shamir.Share])
}

func testUnderflow[P protocol.Linear[P]](p *Protocol[P]) (err error) {
	defer func() {
		if _, ok := recover().(*protocol.SequenceError); !ok {
			err = errors.New("finalize without exchange did not panic")
		}
	}()
	p.FinalizeDotProd(1)
	return nil
}

func TestFinalizeUnderflow(t *testing.T) {
	both(t, nil, testUnderflow[rep3.Share], testUnderflow[shamir.Share])
}

func testRelevant[P protocol.Linear[P]](want int) func(p *Protocol[P]) error {
	return func(p *Protocol[P]) error {
		if p.NRelevantPlayers() != want {
			return fmt.Errorf("relevant players %d, want %d",
				p.NRelevantPlayers(), want)
		}
		return nil
	}
}

func TestNRelevantPlayers(t *testing.T) {
	both(t, nil, testRelevant[rep3.Share](2),
		testRelevant[shamir.Share](shamirThreshold+1))
}

func testMaybeCheck[P protocol.Linear[P]](p *Protocol[P]) error {
	r, err := p.RandomsInst(3)
	if err != nil {
		return err
	}
	if err := p.MaybeCheck(); err != nil {
		return err
	}
	if p.Checks() != 0 || p.Pending() != 3 {
		return fmt.Errorf("checked below threshold: checks=%d, pending=%d",
			p.Checks(), p.Pending())
	}
	p.InitMul()
	p.PrepareMul(r[0], r[1], -1)
	if err := p.Exchange(); err != nil {
		return err
	}
	p.FinalizeMul(-1)
	if err := p.MaybeCheck(); err != nil {
		return err
	}
	if p.Checks() != 1 || p.Pending() != 0 {
		return fmt.Errorf("no check at threshold: checks=%d, pending=%d",
			p.Checks(), p.Pending())
	}
	return nil
}

func TestMaybeCheck(t *testing.T) {
	cfg := &env.Config{
		CheckBatch: 4,
	}
	both(t, cfg, testMaybeCheck[rep3.Share], testMaybeCheck[shamir.Share])
}

func testMaybeCheckBytes[P protocol.Linear[P]](p *Protocol[P]) error {
	if _, err := p.RandomsInst(10); err != nil {
		return err
	}
	if err := p.MaybeCheck(); err != nil {
		return err
	}
	if p.Checks() != 1 {
		return errors.New("byte threshold did not trigger check")
	}
	return nil
}

func TestMaybeCheckBytes(t *testing.T) {
	cfg := &env.Config{
		CheckBatch: 1000,
		CheckBytes: 64,
	}
	both(t, cfg, testMaybeCheckBytes[rep3.Share],
		testMaybeCheckBytes[shamir.Share])
}

func testBranch[P protocol.Linear[P]](p *Protocol[P]) error {
	b, err := p.Branch("worker")
	if err != nil {
		return err
	}
	r, err := b.RandomsInst(2)
	if err != nil {
		return err
	}
	b.InitMul()
	b.PrepareMul(r[0], r[1], -1)
	if err := b.Exchange(); err != nil {
		return err
	}
	z := b.FinalizeMul(-1)
	if p.Pending() != 0 {
		return fmt.Errorf("branch shares in parent buffer: %d", p.Pending())
	}
	if b.Pending() != 3 {
		return fmt.Errorf("branch buffer %d, want 3", b.Pending())
	}
	// The branch shares the MAC key with the parent.
	if err := p.Check(); err != nil {
		return err
	}
	p.AddToCheck(z)
	if err := p.Check(); err != nil {
		return err
	}
	return b.Check()
}

func TestBranch(t *testing.T) {
	both(t, nil, testBranch[rep3.Share], testBranch[shamir.Share])
}

func testBranchSameName[P protocol.Linear[P]](p *Protocol[P]) error {
	var opened [][]field.Element
	for i := 0; i < 2; i++ {
		b, err := p.Branch("worker")
		if err != nil {
			return err
		}
		r, err := b.RandomsInst(4)
		if err != nil {
			return err
		}
		v, err := b.Open(r)
		if err != nil {
			return err
		}
		if err := b.Check(); err != nil {
			return err
		}
		opened = append(opened, v)
	}
	for i := range opened[0] {
		if opened[0][i] != opened[1][i] {
			return nil
		}
	}
	return fmt.Errorf("branches with the same name share randomness: %v",
		opened[0])
}

func TestBranchSameName(t *testing.T) {
	both(t, nil, testBranchSameName[rep3.Share],
		testBranchSameName[shamir.Share])
}

func sorted(v []field.Element) []field.Element {
	result := append([]field.Element(nil), v...)
	sort.Slice(result, func(i, j int) bool {
		return result[i] < result[j]
	})
	return result
}

func testShuffle[P protocol.Linear[P]](p *Protocol[P]) error {
	values := elements(5, 1, 4, 2, 3, 9, 8, 7, 6, 0,
		15, 11, 14, 12, 13, 10)
	x, err := p.Input().Input(0, values, len(values))
	if err != nil {
		return err
	}
	y, err := p.Shuffler().Shuffle(x)
	if err != nil {
		return err
	}
	if p.Pending() != 2*len(values) {
		return fmt.Errorf("shuffled shares not buffered: %d", p.Pending())
	}
	got, err := p.Open(y)
	if err != nil {
		return err
	}
	if err := expect(sorted(got), sorted(values)); err != nil {
		return err
	}
	if expect(got, values) == nil {
		return errors.New("shuffle kept the input order")
	}

	z, err := p.Shuffler().Shuffle(x)
	if err != nil {
		return err
	}
	again, err := p.Open(z)
	if err != nil {
		return err
	}
	if err := expect(sorted(again), sorted(values)); err != nil {
		return err
	}
	if expect(again, got) == nil {
		return fmt.Errorf("two shuffles gave the same order: %v", got)
	}
	return p.Check()
}

func TestShuffle(t *testing.T) {
	both(t, nil, testShuffle[rep3.Share], testShuffle[shamir.Share])
}

func TestShufflerSelection(t *testing.T) {
	both(t, nil,
		func(p *Protocol[rep3.Share]) error {
			s := p.Shuffler().(*shuffler[rep3.Share])
			if _, ok := s.cols.(*rep3.Shuffler); !ok {
				return fmt.Errorf("rep3 uses %T", s.cols)
			}
			return nil
		},
		func(p *Protocol[shamir.Share]) error {
			s := p.Shuffler().(*shuffler[shamir.Share])
			if _, ok := s.cols.(*shuffle.Secure[shamir.Share]); !ok {
				return fmt.Errorf("shamir uses %T", s.cols)
			}
			return nil
		})
}

func testForgery[P protocol.Linear[P]](p *Protocol[P]) error {
	x, err := p.RandomsInst(4)
	if err != nil {
		return err
	}
	// Shift the value without updating the MAC.
	forged := x[1]
	forged.V = forged.V.Add(p.internal.Constant(field.New(1)))
	p.AddToCheck(forged)

	err = p.Check()
	if !errors.Is(err, ErrMACCheck) {
		return fmt.Errorf("forgery not detected: %v", err)
	}
	if err := p.Exchange(); !errors.Is(err, ErrAborted) {
		return fmt.Errorf("aborted instance accepted exchange: %v", err)
	}
	if _, err := p.Open(x); !errors.Is(err, ErrAborted) {
		return fmt.Errorf("aborted instance accepted open: %v", err)
	}
	if err := panics("mul", func() { p.PrepareMul(x[0], x[1], -1) }); err != nil {
		return err
	}
	pending := p.Pending()
	if err := panics("add to check", func() { p.AddToCheck(x[2]) }); err != nil {
		return err
	}
	if p.Pending() != pending {
		return fmt.Errorf("aborted instance buffered %d shares",
			p.Pending()-pending)
	}
	return nil
}

// panics tests that the operation panics on an aborted instance.
func panics(op string, fn func()) (err error) {
	defer func() {
		if recover() == nil {
			err = fmt.Errorf("aborted instance accepted %s", op)
		}
	}()
	fn()
	return nil
}

func TestForgery(t *testing.T) {
	both(t, nil, testForgery[rep3.Share], testForgery[shamir.Share])
}

// tamper adds an error to the first product of a replicated
// multiplication. Parties 0 and 2 hold the component x0 and shift it
// consistently.
type tamper struct {
	*rep3.Protocol
	armed bool
}

func (t *tamper) FinalizeMul(n int) rep3.Share {
	s := t.Protocol.FinalizeMul(n)
	if t.armed {
		t.armed = false
		switch t.Party().ID() {
		case 0:
			s.A = s.A.Add(field.New(1))
		case 2:
			s.B = s.B.Add(field.New(1))
		}
	}
	return s
}

func TestTamperedMul(t *testing.T) {
	errs, err := mpctest.RunAll(rep3.NumParties, func(party *p2p.Party) error {
		part, err := rep3.New(party, nil)
		if err != nil {
			return err
		}
		p, err := New[rep3.Share](&tamper{Protocol: part, armed: true}, nil)
		if err != nil {
			return err
		}
		r, err := p.RandomsInst(2)
		if err != nil {
			return err
		}
		p.InitMul()
		p.PrepareMul(r[0], r[1], -1)
		if err := p.Exchange(); err != nil {
			return err
		}
		p.FinalizeMul(-1)
		return p.Check()
	})
	require.NoError(t, err)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrMACCheck)
	}
}

func TestInputAllParties(t *testing.T) {
	mpctest.Run(t, shamirParties, func(party *p2p.Party) error {
		p, err := newShamir(party, nil)
		if err != nil {
			return err
		}
		for owner := 0; owner < shamirParties; owner++ {
			want := elements(int64(owner*10), int64(owner*10+1))
			x, err := p.Input().Input(owner, want, len(want))
			if err != nil {
				return err
			}
			got, err := p.Open(x)
			if err != nil {
				return err
			}
			if err := expect(got, want); err != nil {
				return err
			}
		}
		return p.Close()
	})
}

func TestInvalidConfig(t *testing.T) {
	mpctest.Run(t, rep3.NumParties, func(party *p2p.Party) error {
		_, err := newRep3(party, &env.Config{CheckBatch: -1})
		if err == nil {
			return errors.New("invalid config accepted")
		}
		return nil
	})
}
