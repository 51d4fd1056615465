//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

// Package rep3 implements the three-party replicated secret sharing
// scheme with honest-majority multiplication.
package rep3

import (
	"github.com/markkurossi/mpcproto/env"
	"github.com/markkurossi/mpcproto/field"
	"github.com/markkurossi/mpcproto/p2p"
	"github.com/markkurossi/mpcproto/protocol"
	"github.com/markkurossi/mpcproto/prss"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/zeebo/blake3"
)

// NumParties is the number of parties of the scheme.
const NumParties = 3

var (
	_ protocol.Honest[Share]        = &Protocol{}
	_ protocol.PairShuffling[Share] = &Protocol{}
)

// Protocol implements the honest replicated multiplication protocol.
// Party i keeps the PRSS keys k_i and k_{i+1}, where k_j is shared
// with party j-1.
type Protocol struct {
	party p2p.Player
	src   *prss.Source
	cfg   *env.Config
	id    int

	mulPending []field.Element
	dotPending []field.Element
	dotAcc     field.Element
	mulDone    *protocol.Queue[Share]
	dotDone    *protocol.Queue[Share]
	inflight   *round
}

// round holds the products of a round between Outgoing and Incoming.
type round struct {
	nmul int
	ndot int
	mine []field.Element
}

// New creates a new protocol instance and runs the PRSS setup round.
func New(party p2p.Player, cfg *env.Config) (*Protocol, error) {
	if party.NumParties() != NumParties {
		return nil, errors.Errorf("rep3: %d parties, want %d",
			party.NumParties(), NumParties)
	}
	src, err := prss.Setup(party, 1, cfg.GetRandom())
	if err != nil {
		return nil, err
	}
	return newProtocol(party, src, cfg), nil
}

func newProtocol(party p2p.Player, src *prss.Source,
	cfg *env.Config) *Protocol {
	return &Protocol{
		party:   party,
		src:     src,
		cfg:     cfg,
		id:      party.ID(),
		mulDone: protocol.NewQueue[Share]("rep3 mul"),
		dotDone: protocol.NewQueue[Share]("rep3 dotprod"),
	}
}

func (p *Protocol) next() int {
	return (p.id + 1) % NumParties
}

func (p *Protocol) prev() int {
	return (p.id + NumParties - 1) % NumParties
}

// key returns the PRSS set of the key k_j.
func key(j int) prss.Set {
	j %= NumParties
	return prss.NewSet((j+NumParties-1)%NumParties, j)
}

// Party implements protocol.Honest.Party.
func (p *Protocol) Party() p2p.Player {
	return p.party
}

// Source implements protocol.Honest.Source.
func (p *Protocol) Source() *prss.Source {
	return p.src
}

// VariablePlayers implements protocol.Honest.VariablePlayers.
func (p *Protocol) VariablePlayers() bool {
	return false
}

// NRelevantPlayers implements protocol.Protocol.NRelevantPlayers.
func (p *Protocol) NRelevantPlayers() int {
	return NumParties - 1
}

// Branch implements protocol.Honest.Branch.
func (p *Protocol) Branch(name string) protocol.Honest[Share] {
	return newProtocol(p.party, p.src.Branch(name), p.cfg)
}

// Zero implements protocol.Honest.Zero.
func (p *Protocol) Zero() Share {
	return Share{}
}

// Constant implements protocol.Honest.Constant. The constant is
// placed in x0.
func (p *Protocol) Constant(c field.Element) Share {
	switch p.id {
	case 0:
		return Share{A: c}
	case NumParties - 1:
		return Share{B: c}
	default:
		return Share{}
	}
}

// Randoms implements protocol.Honest.Randoms.
func (p *Protocol) Randoms(n int) []Share {
	result := make([]Share, n)
	for i := range result {
		result[i] = Share{
			A: p.src.Element(key(p.id)),
			B: p.src.Element(key(p.id + 1)),
		}
	}
	return result
}

// zero returns this party's additive share of zero.
func (p *Protocol) zero() field.Element {
	return p.src.Element(key(p.id)).Sub(p.src.Element(key(p.id + 1)))
}

// InitMul implements protocol.Protocol.InitMul.
func (p *Protocol) InitMul() {
}

// PrepareMul implements protocol.Protocol.PrepareMul.
func (p *Protocol) PrepareMul(x, y Share, n int) {
	p.mulPending = append(p.mulPending, local(x, y).Add(p.zero()))
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
	p.dotAcc = p.dotAcc.Add(local(x, y))
}

// NextDotProd implements protocol.Protocol.NextDotProd.
func (p *Protocol) NextDotProd() {
	p.dotPending = append(p.dotPending, p.dotAcc.Add(p.zero()))
	p.dotAcc = 0
}

// FinalizeDotProd implements protocol.Protocol.FinalizeDotProd.
func (p *Protocol) FinalizeDotProd(length int) Share {
	return p.dotDone.Pop()
}

// Exchange implements protocol.Protocol.Exchange. Every party sends
// its additive product shares to the previous party, which turns
// them into replicated shares. Exchange without prepared operations
// does not communicate.
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
			"rep3: %s: round already in flight", p2p.Label(p.id))
	}
	mine := append(p.mulPending, p.dotPending...)
	p.mulPending = nil
	p.dotPending = nil
	p.inflight = &round{
		nmul: nmul,
		ndot: ndot,
		mine: mine,
	}

	out := make([][]byte, NumParties)
	in := make([]bool, NumParties)
	out[p.prev()] = field.Marshal(mine)
	in[p.next()] = true
	return out, in, nil
}

// Incoming implements protocol.Round.Incoming.
func (p *Protocol) Incoming(msgs [][]byte) error {
	r := p.inflight
	if r == nil {
		return nil
	}
	p.inflight = nil

	theirs, err := field.Unmarshal(msgs[p.next()])
	if err != nil {
		return err
	}
	if len(theirs) != len(r.mine) {
		return errors.Wrapf(protocol.ErrSequence,
			"rep3: %s: received %d products, want %d",
			p2p.Label(p.id), len(theirs), len(r.mine))
	}
	for i := 0; i < r.nmul; i++ {
		p.mulDone.Push(Share{A: r.mine[i], B: theirs[i]})
	}
	for i := r.nmul; i < r.nmul+r.ndot; i++ {
		p.dotDone.Push(Share{A: r.mine[i], B: theirs[i]})
	}
	jww.TRACE.Printf("rep3: %s: exchanged %d mul, %d dotprod\n",
		p2p.Label(p.id), r.nmul, r.ndot)
	return nil
}

func digest(values []field.Element) []byte {
	sum := blake3.Sum256(field.Marshal(values))
	return sum[:]
}

// Open implements protocol.Opener.Open. Party i receives the missing
// component x_{i+2} from party i+2 and its digest from party i+1.
// Any difference is reported as protocol.ErrInconsistentOpen.
func (p *Protocol) Open(values []Share) ([]field.Element, error) {
	if len(values) == 0 {
		return nil, nil
	}
	as := make([]field.Element, len(values))
	bs := make([]field.Element, len(values))
	for i, v := range values {
		as[i] = v.A
		bs[i] = v.B
	}
	out := make([][]byte, NumParties)
	in := make([]bool, NumParties)
	out[p.next()] = field.Marshal(as)
	out[p.prev()] = digest(bs)
	in[p.next()] = true
	in[p.prev()] = true

	msgs, err := p2p.ExchangeWith(p.party, out, in)
	if err != nil {
		return nil, err
	}
	missing, err := field.Unmarshal(msgs[p.prev()])
	if err != nil {
		return nil, err
	}
	if len(missing) != len(values) {
		return nil, errors.Wrapf(protocol.ErrSequence,
			"rep3: %s: opened %d values, want %d",
			p2p.Label(p.id), len(missing), len(values))
	}
	if string(digest(missing)) != string(msgs[p.next()]) {
		jww.ERROR.Printf("rep3: %s: inconsistent opening\n", p2p.Label(p.id))
		return nil, errors.Wrapf(protocol.ErrInconsistentOpen,
			"rep3: %s: digest mismatch", p2p.Label(p.id))
	}
	result := make([]field.Element, len(values))
	for i, v := range values {
		result[i] = v.A.Add(v.B).Add(missing[i])
	}
	return result, nil
}

// Input implements protocol.Honest.Input. The owner splits every
// value into three random components and sends each party its pair.
func (p *Protocol) Input(owner int, values []field.Element, n int) (
	[]Share, error) {

	if owner < 0 || owner >= NumParties {
		return nil, errors.Errorf("rep3: invalid input owner %d", owner)
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
		if len(elems) != 2*n {
			return nil, errors.Errorf("rep3: received %d inputs, want %d",
				len(elems)/2, n)
		}
		result := make([]Share, n)
		for i := range result {
			result[i] = Share{A: elems[2*i], B: elems[2*i+1]}
		}
		return result, nil
	}

	if len(values) != n {
		return nil, errors.Errorf("rep3: %d input values, want %d",
			len(values), n)
	}
	rand := p.cfg.GetRandom()
	parts := make([][NumParties]field.Element, n)
	for i, v := range values {
		x0, err := field.Random(rand)
		if err != nil {
			return nil, err
		}
		x1, err := field.Random(rand)
		if err != nil {
			return nil, err
		}
		parts[i] = [NumParties]field.Element{x0, x1, v.Sub(x0).Sub(x1)}
	}
	out := make([][]byte, NumParties)
	for j := 0; j < NumParties; j++ {
		if j == p.id {
			continue
		}
		elems := make([]field.Element, 0, 2*n)
		for _, part := range parts {
			elems = append(elems, part[j], part[(j+1)%NumParties])
		}
		out[j] = field.Marshal(elems)
	}
	if _, err := p2p.ExchangeWith(p.party, out, nil); err != nil {
		return nil, err
	}
	result := make([]Share, n)
	for i, part := range parts {
		result[i] = Share{A: part[p.id], B: part[(p.id+1)%NumParties]}
	}
	return result, nil
}

// PairShuffler implements protocol.PairShuffling.PairShuffler.
func (p *Protocol) PairShuffler() protocol.ColumnShuffler[Share] {
	return &Shuffler{
		proto: p,
	}
}
