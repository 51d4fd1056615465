//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package spdzwise

import (
	"github.com/markkurossi/mpcproto/field"
	"github.com/markkurossi/mpcproto/protocol"
)

// Input implements the input sub-protocol. The owner shares its
// values with the internal protocol, and the parties authenticate
// the shares with the MAC key of the protocol.
type Input[P protocol.Linear[P]] struct {
	proto *Protocol[P]
}

// Input returns the input sub-protocol of the instance.
func (p *Protocol[P]) Input() *Input[P] {
	return &Input[P]{
		proto: p,
	}
}

// Input shares the owner's values. The owner passes its n values and
// the other parties pass nil.
func (in *Input[P]) Input(owner int, values []field.Element, n int) (
	[]Share[P], error) {

	p := in.proto
	if p.err != nil {
		return nil, p.err
	}
	p.idle("input")
	shares, err := p.internal.Input(owner, values, n)
	if err != nil {
		return nil, p.abort(err)
	}
	return p.Authenticate(shares)
}
