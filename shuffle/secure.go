//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

// Package shuffle implements the generic secure shuffle for
// honest-majority schemes with any number of parties.
package shuffle

import (
	"github.com/markkurossi/mpcproto/field"
	"github.com/markkurossi/mpcproto/p2p"
	"github.com/markkurossi/mpcproto/protocol"
	"github.com/markkurossi/mpcproto/prss"
	jww "github.com/spf13/jwalterweatherman"
)

// Secure implements the secure shuffle. For every PRSS set A of N-t
// parties, the members of A convert the sharing into additive shares
// over A, permute them with a permutation derived from the key of A,
// and reshare the result to all parties. Every set of t parties is
// outside at least one A, so the composed permutation is unknown to
// any coalition of t parties. The shuffle takes one round per set.
type Secure[S protocol.Linear[S]] struct {
	proto protocol.Additive[S]
}

// NewSecure creates a new secure shuffler over the protocol.
func NewSecure[S protocol.Linear[S]](proto protocol.Additive[S]) *Secure[S] {
	return &Secure[S]{
		proto: proto,
	}
}

// Shuffle implements protocol.Shuffler.Shuffle.
func (s *Secure[S]) Shuffle(values []S) ([]S, error) {
	cols, err := s.ShuffleColumns([][]S{values})
	if err != nil {
		return nil, err
	}
	return cols[0], nil
}

// ShuffleColumns implements protocol.ColumnShuffler.ShuffleColumns.
func (s *Secure[S]) ShuffleColumns(cols [][]S) ([][]S, error) {
	n, err := protocol.Columns(cols)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return cols, nil
	}
	party := s.proto.Party()
	src := s.proto.Source()
	me := party.ID()
	total := n * len(cols)

	sets := prss.Subsets(party.NumParties(), party.NumParties()-src.Threshold())
	for _, set := range sets {
		var local []field.Element
		if set.Contains(me) {
			perm := src.Permutation(set, n)
			local = make([]field.Element, 0, total)
			for _, col := range cols {
				for k := 0; k < n; k++ {
					local = append(local, s.proto.ToAdditive(set, col[perm[k]]))
				}
			}
		}
		shares, err := s.proto.ShareAdditive(set, local, total)
		if err != nil {
			return nil, err
		}
		next := make([][]S, len(cols))
		for ci := range cols {
			next[ci] = shares[ci*n : (ci+1)*n]
		}
		cols = next
	}
	jww.DEBUG.Printf("shuffle: %s: shuffled %d columns of %d in %d rounds\n",
		p2p.Label(me), len(cols), n, len(sets))
	return cols, nil
}
