//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package spdzwise

import (
	"fmt"

	"github.com/markkurossi/mpcproto/field"
	"github.com/markkurossi/mpcproto/protocol"
)

// Share implements an authenticated share. V shares the value x and
// M shares the MAC alpha*x under the part scheme P.
type Share[P protocol.Linear[P]] struct {
	V P
	M P
}

// Add returns s+o.
func (s Share[P]) Add(o Share[P]) Share[P] {
	return Share[P]{
		V: s.V.Add(o.V),
		M: s.M.Add(o.M),
	}
}

// Sub returns s-o.
func (s Share[P]) Sub(o Share[P]) Share[P] {
	return Share[P]{
		V: s.V.Sub(o.V),
		M: s.M.Sub(o.M),
	}
}

// Neg returns -s.
func (s Share[P]) Neg() Share[P] {
	return Share[P]{
		V: s.V.Neg(),
		M: s.M.Neg(),
	}
}

// Scale returns c*s.
func (s Share[P]) Scale(c field.Element) Share[P] {
	return Share[P]{
		V: s.V.Scale(c),
		M: s.M.Scale(c),
	}
}

func (s Share[P]) String() string {
	return fmt.Sprintf("{%v,%v}", s.V, s.M)
}
