//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

// Package shamir implements Shamir secret sharing with
// honest-majority multiplication for any number of parties. Party i
// holds the evaluation f(i+1) of a degree-t polynomial f with f(0)
// equal to the shared value.
package shamir

import (
	"io"

	"github.com/markkurossi/mpcproto/env"
	"github.com/markkurossi/mpcproto/field"
	"github.com/markkurossi/mpcproto/p2p"
	"github.com/markkurossi/mpcproto/protocol"
	"github.com/markkurossi/mpcproto/prss"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

var (
	_ protocol.Linear[Share]   = Share{}
	_ protocol.Additive[Share] = &Protocol{}
)

// Share implements a Shamir share.
type Share struct {
	V field.Element
}

// Add returns s+o.
func (s Share) Add(o Share) Share {
	return Share{V: s.V.Add(o.V)}
}

// Sub returns s-o.
func (s Share) Sub(o Share) Share {
	return Share{V: s.V.Sub(o.V)}
}

// Neg returns -s.
func (s Share) Neg() Share {
	return Share{V: s.V.Neg()}
}

// Scale returns c*s.
func (s Share) Scale(c field.Element) Share {
	return Share{V: s.V.Mul(c)}
}

func (s Share) String() string {
	return s.V.String()
}

// Protocol implements the honest Shamir multiplication protocol.
// Products are degree 2t sharings that every party reshares with a
// fresh degree t polynomial, and the parties recombine the
// subshares with the Lagrange coefficients of all n points.
type Protocol struct {
	party p2p.Player
	src   *prss.Source
	cfg   *env.Config
	id    int
	n     int
	t     int

	points    []field.Element
	recombine []field.Element
	prssCoeff map[prss.Set]field.Element
	openBase  []field.Element
	openCheck [][]field.Element

	mulPending []field.Element
	dotPending []field.Element
	dotAcc     field.Element
	mulDone    *protocol.Queue[Share]
	dotDone    *protocol.Queue[Share]
	inflight   *round
}

// round holds the dealt subshares of a round between Outgoing and
// Incoming.
type round struct {
	nmul      int
	ndot      int
	subshares [][]field.Element
}

// New creates a new protocol instance with threshold t and runs the
// PRSS setup round.
func New(party p2p.Player, t int, cfg *env.Config) (*Protocol, error) {
	n := party.NumParties()
	if n < 3 || t < 1 || 2*t >= n {
		return nil, errors.Errorf("shamir: invalid threshold %d for %d parties",
			t, n)
	}
	src, err := prss.Setup(party, t, cfg.GetRandom())
	if err != nil {
		return nil, err
	}
	return newProtocol(party, src, cfg)
}

func newProtocol(party p2p.Player, src *prss.Source, cfg *env.Config) (
	*Protocol, error) {

	n := party.NumParties()
	t := src.Threshold()
	p := &Protocol{
		party:     party,
		src:       src,
		cfg:       cfg,
		id:        party.ID(),
		n:         n,
		t:         t,
		points:    make([]field.Element, n),
		prssCoeff: make(map[prss.Set]field.Element),
		mulDone:   protocol.NewQueue[Share]("shamir mul"),
		dotDone:   protocol.NewQueue[Share]("shamir dotprod"),
	}
	for i := range p.points {
		p.points[i] = field.New(uint64(i + 1))
	}
	var err error
	p.recombine, err = field.Lagrange(p.points, 0)
	if err != nil {
		return nil, err
	}

	// f_A(x) = prod_{j not in A} (x_j - x) / x_j has degree t, f_A(0)
	// = 1, and vanishes outside A.
	me := p.points[p.id]
	for _, set := range src.Sets() {
		coeff := field.Element(1)
		for j := 0; j < n; j++ {
			if set.Contains(j) {
				continue
			}
			inv, err := p.points[j].Inverse()
			if err != nil {
				return nil, err
			}
			coeff = coeff.Mul(p.points[j].Sub(me)).Mul(inv)
		}
		p.prssCoeff[set] = coeff
	}

	// Openings interpolate from the first t+1 points and check that
	// the remaining points are on the same polynomial.
	base := p.points[:t+1]
	p.openBase, err = field.Lagrange(base, 0)
	if err != nil {
		return nil, err
	}
	for j := t + 1; j < n; j++ {
		c, err := field.Lagrange(base, p.points[j])
		if err != nil {
			return nil, err
		}
		p.openCheck = append(p.openCheck, c)
	}
	return p, nil
}

// Party implements protocol.Honest.Party.
func (p *Protocol) Party() p2p.Player {
	return p.party
}

// Source implements protocol.Honest.Source.
func (p *Protocol) Source() *prss.Source {
	return p.src
}

// Threshold returns the corruption threshold t.
func (p *Protocol) Threshold() int {
	return p.t
}

// VariablePlayers implements protocol.Honest.VariablePlayers.
func (p *Protocol) VariablePlayers() bool {
	return true
}

// NRelevantPlayers implements protocol.Protocol.NRelevantPlayers.
func (p *Protocol) NRelevantPlayers() int {
	return p.t + 1
}

// Branch implements protocol.Honest.Branch.
func (p *Protocol) Branch(name string) protocol.Honest[Share] {
	b, err := newProtocol(p.party, p.src.Branch(name), p.cfg)
	if err != nil {
		// The coefficients were already computed successfully for
		// the same points.
		panic(err)
	}
	return b
}

// Zero implements protocol.Honest.Zero.
func (p *Protocol) Zero() Share {
	return Share{}
}

// Constant implements protocol.Honest.Constant.
func (p *Protocol) Constant(c field.Element) Share {
	return Share{V: c}
}

// Randoms implements protocol.Honest.Randoms.
func (p *Protocol) Randoms(n int) []Share {
	result := make([]Share, n)
	sets := p.src.Sets()
	for i := range result {
		var v field.Element
		for _, set := range sets {
			v = v.Add(p.src.Element(set).Mul(p.prssCoeff[set]))
		}
		result[i] = Share{V: v}
	}
	return result
}

// deal creates degree t sharings of the values. The result is
// indexed by party and value.
func (p *Protocol) deal(rand io.Reader, values []field.Element) (
	[][]field.Element, error) {

	result := make([][]field.Element, p.n)
	for j := range result {
		result[j] = make([]field.Element, len(values))
	}
	coeffs := make([]field.Element, p.t)
	for i, v := range values {
		for k := range coeffs {
			c, err := field.Random(rand)
			if err != nil {
				return nil, err
			}
			coeffs[k] = c
		}
		for j := 0; j < p.n; j++ {
			// Horner evaluation of v + c_0 x + ... + c_{t-1} x^t.
			x := p.points[j]
			var acc field.Element
			for k := len(coeffs) - 1; k >= 0; k-- {
				acc = acc.Add(coeffs[k]).Mul(x)
			}
			result[j][i] = acc.Add(v)
		}
	}
	return result, nil
}

// InitMul implements protocol.Protocol.InitMul.
func (p *Protocol) InitMul() {
}

// PrepareMul implements protocol.Protocol.PrepareMul.
func (p *Protocol) PrepareMul(x, y Share, n int) {
	p.mulPending = append(p.mulPending, x.V.Mul(y.V))
}

// FinalizeMul implements protocol.Protocol.FinalizeMul.
func (p *Protocol) FinalizeMul(n int) Share {
	return p.mulDone.Pop()
}

// InitDotProd implements protocol.Protocol.InitDotProd.
func (p *Protocol) InitDotProd() {
	p.dotAcc = 0
}

// PrepareDotProd implements protocol.Protocol.PrepareDotProd.
func (p *Protocol) PrepareDotProd(x, y Share) {
	p.dotAcc = p.dotAcc.Add(x.V.Mul(y.V))
}

// NextDotProd implements protocol.Protocol.NextDotProd.
func (p *Protocol) NextDotProd() {
	p.dotPending = append(p.dotPending, p.dotAcc)
	p.dotAcc = 0
}

// FinalizeDotProd implements protocol.Protocol.FinalizeDotProd.
func (p *Protocol) FinalizeDotProd(length int) Share {
	return p.dotDone.Pop()
}

// Exchange implements protocol.Protocol.Exchange. Every party deals
// its degree-2t products as degree-t subshares, and the parties
// recombine the received subshares. Exchange without prepared
// operations does not communicate.
func (p *Protocol) Exchange() error {
	out, in, err := p.Outgoing()
	if err != nil || out == nil {
		return err
	}
	msgs, err := p2p.ExchangeWith(p.party, out, in)
	if err != nil {
		return err
	}
	return p.Incoming(msgs)
}

// Outgoing implements protocol.Round.Outgoing.
func (p *Protocol) Outgoing() ([][]byte, []bool, error) {
	nmul := len(p.mulPending)
	ndot := len(p.dotPending)
	if nmul+ndot == 0 {
		return nil, nil, nil
	}
	if p.inflight != nil {
		return nil, nil, errors.Wrapf(protocol.ErrSequence,
			"shamir: %s: round already in flight", p2p.Label(p.id))
	}
	local := append(p.mulPending, p.dotPending...)
	p.mulPending = nil
	p.dotPending = nil

	subshares, err := p.deal(p.cfg.GetRandom(), local)
	if err != nil {
		return nil, nil, err
	}
	p.inflight = &round{
		nmul:      nmul,
		ndot:      ndot,
		subshares: subshares,
	}
	out := make([][]byte, p.n)
	in := make([]bool, p.n)
	for j := 0; j < p.n; j++ {
		if j != p.id {
			out[j] = field.Marshal(subshares[j])
			in[j] = true
		}
	}
	return out, in, nil
}

// Incoming implements protocol.Round.Incoming.
func (p *Protocol) Incoming(msgs [][]byte) error {
	r := p.inflight
	if r == nil {
		return nil
	}
	p.inflight = nil

	count := r.nmul + r.ndot
	result := make([]field.Element, count)
	for j := 0; j < p.n; j++ {
		var sub []field.Element
		if j == p.id {
			sub = r.subshares[j]
		} else {
			var err error
			sub, err = field.Unmarshal(msgs[j])
			if err != nil {
				return err
			}
			if len(sub) != count {
				return errors.Wrapf(protocol.ErrSequence,
					"shamir: %s: received %d subshares from %s, want %d",
					p2p.Label(p.id), len(sub), p2p.Label(j), count)
			}
		}
		for i, s := range sub {
			result[i] = result[i].Add(p.recombine[j].Mul(s))
		}
	}
	for i := 0; i < r.nmul; i++ {
		p.mulDone.Push(Share{V: result[i]})
	}
	for i := r.nmul; i < count; i++ {
		p.dotDone.Push(Share{V: result[i]})
	}
	jww.TRACE.Printf("shamir: %s: exchanged %d mul, %d dotprod\n",
		p2p.Label(p.id), r.nmul, r.ndot)
	return nil
}

// Open implements protocol.Opener.Open. All parties broadcast their
// shares. The value is interpolated from the first t+1 shares, and
// the remaining shares must lie on the same polynomial.
func (p *Protocol) Open(values []Share) ([]field.Element, error) {
	if len(values) == 0 {
		return nil, nil
	}
	mine := make([]field.Element, len(values))
	for i, v := range values {
		mine[i] = v.V
	}
	msgs, err := p2p.AllGather(p.party, field.Marshal(mine))
	if err != nil {
		return nil, err
	}
	shares := make([][]field.Element, p.n)
	for j, msg := range msgs {
		shares[j], err = field.Unmarshal(msg)
		if err != nil {
			return nil, err
		}
		if len(shares[j]) != len(values) {
			return nil, errors.Wrapf(protocol.ErrSequence,
				"shamir: %s: opened %d values from %s, want %d",
				p2p.Label(p.id), len(shares[j]), p2p.Label(j), len(values))
		}
	}
	result := make([]field.Element, len(values))
	for i := range values {
		for j := 0; j <= p.t; j++ {
			result[i] = result[i].Add(p.openBase[j].Mul(shares[j][i]))
		}
		for k, coeffs := range p.openCheck {
			var y field.Element
			for j := 0; j <= p.t; j++ {
				y = y.Add(coeffs[j].Mul(shares[j][i]))
			}
			other := p.t + 1 + k
			if y != shares[other][i] {
				jww.ERROR.Printf("shamir: %s: share of %s is not on the polynomial\n",
					p2p.Label(p.id), p2p.Label(other))
				return nil, errors.Wrapf(protocol.ErrInconsistentOpen,
					"shamir: %s: degree check failed", p2p.Label(p.id))
			}
		}
	}
	return result, nil
}

// Input implements protocol.Honest.Input.
func (p *Protocol) Input(owner int, values []field.Element, n int) (
	[]Share, error) {

	if owner < 0 || owner >= p.n {
		return nil, errors.Errorf("shamir: invalid input owner %d", owner)
	}
	if owner != p.id {
		msg, err := p.party.Receive(owner)
		if err != nil {
			return nil, err
		}
		elems, err := field.Unmarshal(msg)
		if err != nil {
			return nil, err
		}
		if len(elems) != n {
			return nil, errors.Errorf("shamir: received %d inputs, want %d",
				len(elems), n)
		}
		return wrap(elems), nil
	}
	if len(values) != n {
		return nil, errors.Errorf("shamir: %d input values, want %d",
			len(values), n)
	}
	shares, err := p.deal(p.cfg.GetRandom(), values)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, p.n)
	for j := range out {
		if j != p.id {
			out[j] = field.Marshal(shares[j])
		}
	}
	if _, err := p2p.ExchangeWith(p.party, out, nil); err != nil {
		return nil, err
	}
	return wrap(shares[p.id]), nil
}

func wrap(values []field.Element) []Share {
	result := make([]Share, len(values))
	for i, v := range values {
		result[i] = Share{V: v}
	}
	return result
}

// ToAdditive implements protocol.Additive.ToAdditive.
func (p *Protocol) ToAdditive(set prss.Set, x Share) field.Element {
	members := set.Members()
	xs := make([]field.Element, len(members))
	idx := -1
	for i, m := range members {
		xs[i] = p.points[m]
		if m == p.id {
			idx = i
		}
	}
	if idx < 0 {
		panic(errors.Errorf("shamir: %s is not a member of set %v",
			p2p.Label(p.id), members))
	}
	coeffs, err := field.Lagrange(xs, 0)
	if err != nil {
		panic(err)
	}
	return x.V.Mul(coeffs[idx])
}

// ShareAdditive implements protocol.Additive.ShareAdditive.
func (p *Protocol) ShareAdditive(set prss.Set, local []field.Element, n int) (
	[]Share, error) {

	out := make([][]byte, p.n)
	in := make([]bool, p.n)
	var own [][]field.Element

	if set.Contains(p.id) {
		if len(local) != n {
			return nil, errors.Errorf("shamir: %d additive values, want %d",
				len(local), n)
		}
		var err error
		own, err = p.deal(p.cfg.GetRandom(), local)
		if err != nil {
			return nil, err
		}
		for j := range out {
			if j != p.id {
				out[j] = field.Marshal(own[j])
			}
		}
	}
	for _, m := range set.Members() {
		if m != p.id {
			in[m] = true
		}
	}
	msgs, err := p2p.ExchangeWith(p.party, out, in)
	if err != nil {
		return nil, err
	}
	result := make([]field.Element, n)
	if own != nil {
		copy(result, own[p.id])
	}
	for _, m := range set.Members() {
		if m == p.id {
			continue
		}
		sub, err := field.Unmarshal(msgs[m])
		if err != nil {
			return nil, err
		}
		if len(sub) != n {
			return nil, errors.Wrapf(protocol.ErrSequence,
				"shamir: received %d reshares from %s, want %d",
				len(sub), p2p.Label(m), n)
		}
		for i, v := range sub {
			result[i] = result[i].Add(v)
		}
	}
	return wrap(result), nil
}
