//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package rep3

import (
	"fmt"

	"github.com/markkurossi/mpcproto/field"
	"github.com/markkurossi/mpcproto/protocol"
)

var (
	_ protocol.Linear[Share] = Share{}
)

// Share implements a replicated share. The value x is split into
// x = x0 + x1 + x2 and party i holds A = x_i and B = x_{i+1}.
type Share struct {
	A field.Element
	B field.Element
}

// Add returns s+o.
func (s Share) Add(o Share) Share {
	return Share{
		A: s.A.Add(o.A),
		B: s.B.Add(o.B),
	}
}

// Sub returns s-o.
func (s Share) Sub(o Share) Share {
	return Share{
		A: s.A.Sub(o.A),
		B: s.B.Sub(o.B),
	}
}

// Neg returns -s.
func (s Share) Neg() Share {
	return Share{
		A: s.A.Neg(),
		B: s.B.Neg(),
	}
}

// Scale returns c*s.
func (s Share) Scale(c field.Element) Share {
	return Share{
		A: s.A.Mul(c),
		B: s.B.Mul(c),
	}
}

func (s Share) String() string {
	return fmt.Sprintf("(%v,%v)", s.A, s.B)
}

// local computes this party's additive share of x*y.
func local(x, y Share) field.Element {
	return x.A.Mul(y.A).Add(x.A.Mul(y.B)).Add(x.B.Mul(y.A))
}
