//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package rep3

import (
	"github.com/markkurossi/mpcproto/field"
	"github.com/markkurossi/mpcproto/p2p"
	"github.com/markkurossi/mpcproto/protocol"
	"github.com/pkg/errors"
)

var (
	_ protocol.ColumnShuffler[Share] = &Shuffler{}
)

// Shuffler implements the three-party shuffle. For each of the three
// party pairs, the pair converts the sharing into a two-party
// additive sharing, permutes it with a permutation derived from the
// pair key, and reshares it to the third party. No single party
// knows all three permutations.
type Shuffler struct {
	proto *Protocol
}

// ShuffleColumns implements protocol.ColumnShuffler.ShuffleColumns.
func (s *Shuffler) ShuffleColumns(cols [][]Share) ([][]Share, error) {
	n, err := protocol.Columns(cols)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return cols, nil
	}
	for a := 0; a < NumParties; a++ {
		cols, err = s.pass(a, cols, n)
		if err != nil {
			return nil, err
		}
	}
	return cols, nil
}

// pass runs the reshuffle of the pair {a, a+1} whose shared key is
// k_{a+1}.
func (s *Shuffler) pass(a int, cols [][]Share, n int) ([][]Share, error) {
	p := s.proto
	b := (a + 1) % NumParties
	c := (a + 2) % NumParties
	id := p.id

	result := make([][]Share, len(cols))
	out := make([][]byte, NumParties)
	in := make([]bool, NumParties)

	if id == c {
		in[a] = true
		in[b] = true
		msgs, err := p2p.ExchangeWith(p.party, out, in)
		if err != nil {
			return nil, err
		}
		ya, err := field.Unmarshal(msgs[a])
		if err != nil {
			return nil, err
		}
		yc, err := field.Unmarshal(msgs[b])
		if err != nil {
			return nil, err
		}
		if len(ya) != n*len(cols) || len(yc) != n*len(cols) {
			return nil, errors.Wrapf(protocol.ErrSequence,
				"rep3: shuffle: invalid vector lengths %d, %d",
				len(ya), len(yc))
		}
		for ci := range cols {
			result[ci] = make([]Share, n)
			for k := 0; k < n; k++ {
				result[ci][k] = Share{A: yc[ci*n+k], B: ya[ci*n+k]}
			}
		}
		return result, nil
	}

	set := key(a + 1)
	perm := p.src.Permutation(set, n)
	var sent []field.Element

	for ci, col := range cols {
		r := p.src.Elements(set, n)
		z := p.src.Elements(set, n)
		result[ci] = make([]Share, n)

		for k := 0; k < n; k++ {
			// Additive sharing over the pair: party a holds
			// x_a+x_{a+1} and party a+1 holds x_{a+2}.
			var u field.Element
			src := col[perm[k]]
			if id == a {
				u = src.A.Add(src.B)
				y := u.Sub(r[k]).Add(z[k])
				result[ci][k] = Share{A: y, B: r[k]}
				sent = append(sent, y)
			} else {
				u = src.B
				y := u.Sub(z[k])
				result[ci][k] = Share{A: r[k], B: y}
				sent = append(sent, y)
			}
		}
	}
	out[c] = field.Marshal(sent)
	if _, err := p2p.ExchangeWith(p.party, out, in); err != nil {
		return nil, err
	}
	return result, nil
}
