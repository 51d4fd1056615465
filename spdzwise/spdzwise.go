//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

// Package spdzwise implements the SPDZ-wise checked multiplication
// protocol. Every value is shared together with its MAC under a
// secret MAC key alpha, and the products computed by the underlying
// honest-majority protocol are verified in batches with a random
// linear combination. A failed verification aborts the computation.
package spdzwise

import (
	"github.com/markkurossi/mpcproto/env"
	"github.com/markkurossi/mpcproto/field"
	"github.com/markkurossi/mpcproto/p2p"
	"github.com/markkurossi/mpcproto/protocol"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

var (
	// ErrMACCheck is returned when the MAC check detects an
	// inconsistency.
	ErrMACCheck = errors.New("spdzwise: MAC check failed")

	// ErrAborted is returned by all operations of a protocol
	// instance after a fatal error.
	ErrAborted = errors.New("spdzwise: protocol aborted")
)

// Protocol implements the checked multiplication protocol over the
// part scheme P. The internal protocol multiplies the values and
// the internal2 protocol multiplies the MACs with the values.
type Protocol[P protocol.Linear[P]] struct {
	internal  protocol.Honest[P]
	internal2 protocol.Honest[P]
	cfg       *env.Config
	name      string
	macKey    P

	results      []Share[P]
	coefficients []P
	commBytes    uint64
	checks       int

	mulPrepared int
	dotPrepared int
	mulDone     *protocol.Queue[Share[P]]
	dotDone     *protocol.Queue[Share[P]]

	shuffler protocol.Shuffler[Share[P]]
	err      error
}

// New creates a new checked protocol over the part protocol. The MAC
// key is drawn from the part protocol's shared randomness.
func New[P protocol.Linear[P]](part protocol.Honest[P], cfg *env.Config) (
	*Protocol[P], error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewWithKey(part, part.Randoms(1)[0], cfg)
}

// NewWithKey creates a new checked protocol with the MAC key share.
func NewWithKey[P protocol.Linear[P]](part protocol.Honest[P], key P,
	cfg *env.Config) (*Protocol[P], error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newProtocol(part, part.Branch("mac"), key, cfg, "")
}

func newProtocol[P protocol.Linear[P]](internal, internal2 protocol.Honest[P],
	key P, cfg *env.Config, name string) (*Protocol[P], error) {

	p := &Protocol[P]{
		internal:  internal,
		internal2: internal2,
		cfg:       cfg,
		name:      name,
		macKey:    key,
		mulDone:   protocol.NewQueue[Share[P]]("spdzwise mul"),
		dotDone:   protocol.NewQueue[Share[P]]("spdzwise dotprod"),
	}
	var err error
	p.shuffler, err = newShuffler(p)
	if err != nil {
		return nil, err
	}
	jww.DEBUG.Printf("spdzwise: %s: new instance %q, shuffler %T\n",
		p.label(), name, p.shuffler)
	return p, nil
}

func (p *Protocol[P]) label() string {
	return p2p.Label(p.internal.Party().ID())
}

// Branch returns a new protocol instance with the same MAC key and
// independent queues and check buffer. The internal protocols are
// branched into a derived PRSS domain.
func (p *Protocol[P]) Branch(name string) (*Protocol[P], error) {
	if p.err != nil {
		return nil, p.err
	}
	full := p.name + "/" + name
	return newProtocol(p.internal.Branch(full), p.internal2.Branch(full+"/mac"),
		p.macKey, p.cfg, full)
}

// Party returns the communication channel.
func (p *Protocol[P]) Party() p2p.Player {
	return p.internal.Party()
}

// NRelevantPlayers returns the number of parties whose messages are
// needed for reconstruction.
func (p *Protocol[P]) NRelevantPlayers() int {
	return p.internal.NRelevantPlayers()
}

// Shuffler returns the shuffler of the protocol.
func (p *Protocol[P]) Shuffler() protocol.Shuffler[Share[P]] {
	return p.shuffler
}

// Err returns the fatal error of the instance or nil.
func (p *Protocol[P]) Err() error {
	return p.err
}

// Pending returns the number of MAC'd shares awaiting verification.
func (p *Protocol[P]) Pending() int {
	return len(p.results)
}

// Checks returns the number of completed MAC checks.
func (p *Protocol[P]) Checks() int {
	return p.checks
}

func (p *Protocol[P]) abort(err error) error {
	if p.err == nil {
		p.err = errors.Wrapf(ErrAborted, "%v", err)
	}
	return err
}

// live panics if the instance has been aborted. It guards the
// operations that have no error return.
func (p *Protocol[P]) live() {
	if p.err != nil {
		panic(p.err)
	}
}

// idle panics with *protocol.SequenceError if operations are
// prepared but not exchanged.
func (p *Protocol[P]) idle(op string) {
	if p.mulPrepared+p.dotPrepared > 0 {
		panic(&protocol.SequenceError{
			Op:        "spdzwise " + op + " with prepared operations",
			Completed: p.mulDone.Len() + p.dotDone.Len(),
		})
	}
}

func (p *Protocol[P]) opBytes(count int) uint64 {
	return uint64(count) * 2 * field.ByteSize *
		uint64(p.internal.Party().NumParties()-1)
}

// Zero returns the share of zero.
func (p *Protocol[P]) Zero() Share[P] {
	return Share[P]{
		V: p.internal.Zero(),
		M: p.internal.Zero(),
	}
}

// Constant returns the share of the public constant c.
func (p *Protocol[P]) Constant(c field.Element) Share[P] {
	return Share[P]{
		V: p.internal.Constant(c),
		M: p.macKey.Scale(c),
	}
}

// InitMul starts a multiplication batch.
func (p *Protocol[P]) InitMul() {
	p.live()
	p.internal.InitMul()
	p.internal2.InitMul()
}

// PrepareMul enqueues the product x*y. The argument n limits the
// operation to n sub-elements for packed share types, and -1 selects
// the full width.
func (p *Protocol[P]) PrepareMul(x, y Share[P], n int) {
	p.live()
	p.internal.PrepareMul(x.V, y.V, n)
	p.internal2.PrepareMul(x.M, y.V, n)
	p.mulPrepared++
}

// FinalizeMul returns the next completed product in the order the
// products were prepared.
func (p *Protocol[P]) FinalizeMul(n int) Share[P] {
	p.live()
	return p.mulDone.Pop()
}

// InitDotProd starts a dot product batch.
func (p *Protocol[P]) InitDotProd() {
	p.live()
	p.internal.InitDotProd()
	p.internal2.InitDotProd()
}

// PrepareDotProd adds the term x*y to the current dot product.
func (p *Protocol[P]) PrepareDotProd(x, y Share[P]) {
	p.live()
	p.internal.PrepareDotProd(x.V, y.V)
	p.internal2.PrepareDotProd(x.M, y.V)
}

// NextDotProd closes the current dot product.
func (p *Protocol[P]) NextDotProd() {
	p.live()
	p.internal.NextDotProd()
	p.internal2.NextDotProd()
	p.dotPrepared++
}

// FinalizeDotProd returns the next completed dot product.
func (p *Protocol[P]) FinalizeDotProd(length int) Share[P] {
	p.live()
	return p.dotDone.Pop()
}

// Exchange runs one round for all prepared products and dot
// products. The value and MAC messages to each peer travel in the
// same message. The results are added to the check buffer. Exchange
// without prepared operations does not communicate.
func (p *Protocol[P]) Exchange() error {
	if p.err != nil {
		return p.err
	}
	if p.mulPrepared+p.dotPrepared == 0 {
		return nil
	}
	out, in, err := p.internal.Outgoing()
	if err != nil {
		return p.abort(err)
	}
	out2, in2, err := p.internal2.Outgoing()
	if err != nil {
		return p.abort(err)
	}
	msgs, err := p2p.ExchangeBundle(p.Party(),
		[][][]byte{out, out2}, [][]bool{in, in2})
	if err != nil {
		return p.abort(err)
	}
	if err := p.internal.Incoming(msgs[0]); err != nil {
		return p.abort(err)
	}
	if err := p.internal2.Incoming(msgs[1]); err != nil {
		return p.abort(err)
	}
	for i := 0; i < p.mulPrepared; i++ {
		s := Share[P]{
			V: p.internal.FinalizeMul(-1),
			M: p.internal2.FinalizeMul(-1),
		}
		p.mulDone.Push(s)
		p.results = append(p.results, s)
	}
	for i := 0; i < p.dotPrepared; i++ {
		s := Share[P]{
			V: p.internal.FinalizeDotProd(-1),
			M: p.internal2.FinalizeDotProd(-1),
		}
		p.dotDone.Push(s)
		p.results = append(p.results, s)
	}
	p.commBytes += p.opBytes(p.mulPrepared + p.dotPrepared)
	p.mulPrepared = 0
	p.dotPrepared = 0
	return nil
}

// AddToCheck adds the share to the check buffer.
func (p *Protocol[P]) AddToCheck(x Share[P]) {
	p.live()
	p.results = append(p.results, x)
}

// Check verifies all buffered shares and resets the buffer. It draws
// a random coefficient share r_i for every buffered share (v_i, m_i),
// computes u = sum r_i*v_i and w = sum r_i*m_i, and verifies that
// alpha*u - w is zero. A failed check aborts the instance.
func (p *Protocol[P]) Check() error {
	if p.err != nil {
		return p.err
	}
	p.idle("check")

	n := len(p.results)
	if n == 0 {
		return nil
	}
	if cap(p.coefficients) < n {
		p.coefficients = make([]P, 0, n)
	}
	p.coefficients = append(p.coefficients[:0], p.internal.Randoms(n)...)

	in := p.internal
	in.InitDotProd()
	for i, r := range p.coefficients {
		in.PrepareDotProd(r, p.results[i].V)
	}
	in.NextDotProd()
	for i, r := range p.coefficients {
		in.PrepareDotProd(r, p.results[i].M)
	}
	in.NextDotProd()
	if err := in.Exchange(); err != nil {
		return p.abort(err)
	}
	u := in.FinalizeDotProd(n)
	w := in.FinalizeDotProd(n)

	in.InitMul()
	in.PrepareMul(p.macKey, u, -1)
	if err := in.Exchange(); err != nil {
		return p.abort(err)
	}
	au := in.FinalizeMul(-1)

	p.results = p.results[:0]
	p.commBytes = 0

	if err := p.zeroCheck(au.Sub(w)); err != nil {
		return err
	}
	p.checks++
	jww.INFO.Printf("spdzwise: %s: MAC check #%d of %d shares passed\n",
		p.label(), p.checks, n)
	return nil
}

// zeroCheck verifies that t shares zero. The value is masked with a
// random share before opening so that a nonzero value reveals
// nothing.
func (p *Protocol[P]) zeroCheck(t P) error {
	in := p.internal
	r := in.Randoms(1)[0]

	in.InitMul()
	in.PrepareMul(t, r, -1)
	if err := in.Exchange(); err != nil {
		return p.abort(err)
	}
	masked := in.FinalizeMul(-1)

	vals, err := in.Open([]P{masked})
	if err != nil {
		jww.ERROR.Printf("spdzwise: %s: zero check opening failed: %s\n",
			p.label(), err)
		return p.abort(err)
	}
	if !vals[0].IsZero() {
		jww.ERROR.Printf("spdzwise: %s: MAC check failed\n", p.label())
		return p.abort(errors.Wrapf(ErrMACCheck, "%s", p.label()))
	}
	return nil
}

// MaybeCheck runs Check if the check buffer has reached the batch
// threshold, or if the estimated communication since the last check
// has reached the byte threshold. The estimate is computed from the
// operation counts so that all parties make the same decision.
func (p *Protocol[P]) MaybeCheck() error {
	if p.err != nil {
		return p.err
	}
	if p.mulPrepared+p.dotPrepared > 0 {
		return nil
	}
	if len(p.results) >= p.cfg.GetCheckBatch() {
		return p.Check()
	}
	if p.commBytes >= p.cfg.GetCheckBytes() {
		return p.Check()
	}
	return nil
}

// Authenticate computes the MACs of the part shares and returns the
// authenticated shares. The shares are added to the check buffer.
func (p *Protocol[P]) Authenticate(values []P) ([]Share[P], error) {
	if p.err != nil {
		return nil, p.err
	}
	p.idle("authenticate")
	if len(values) == 0 {
		return nil, nil
	}
	in := p.internal2
	in.InitMul()
	for _, v := range values {
		in.PrepareMul(p.macKey, v, -1)
	}
	if err := in.Exchange(); err != nil {
		return nil, p.abort(err)
	}
	result := make([]Share[P], len(values))
	for i, v := range values {
		result[i] = Share[P]{
			V: v,
			M: in.FinalizeMul(-1),
		}
		p.results = append(p.results, result[i])
	}
	p.commBytes += p.opBytes(len(values))
	return result, nil
}

// RandomsInst returns n authenticated shares of random values. The
// values come from the shared randomness and the MACs take one
// round.
func (p *Protocol[P]) RandomsInst(n int) ([]Share[P], error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.Authenticate(p.internal.Randoms(n))
}

// Open opens the values to all parties. The values are added to the
// check buffer, and the opening checks the consistency of the value
// shares.
func (p *Protocol[P]) Open(values []Share[P]) ([]field.Element, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.idle("open")

	parts := make([]P, len(values))
	for i, v := range values {
		parts[i] = v.V
		p.results = append(p.results, v)
	}
	result, err := p.internal.Open(parts)
	if err != nil {
		return nil, p.abort(err)
	}
	p.commBytes += p.opBytes(len(values))
	return result, nil
}

// Close runs the final MAC check of the buffered shares.
func (p *Protocol[P]) Close() error {
	return p.Check()
}
