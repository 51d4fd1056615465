//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package spdzwise

import (
	"github.com/markkurossi/mpcproto/protocol"
	"github.com/markkurossi/mpcproto/shuffle"
	"github.com/pkg/errors"
)

// shuffler permutes the value and MAC components of authenticated
// shares with the same secret permutation.
type shuffler[P protocol.Linear[P]] struct {
	proto *Protocol[P]
	cols  protocol.ColumnShuffler[P]
}

// newShuffler selects the shuffler from the capabilities of the part
// scheme. Schemes with a variable number of parties use the generic
// secure shuffle and fixed three-party schemes use their pair
// shuffler.
func newShuffler[P protocol.Linear[P]](p *Protocol[P]) (
	*shuffler[P], error) {

	var cols protocol.ColumnShuffler[P]
	if p.internal.VariablePlayers() {
		add, ok := p.internal.(protocol.Additive[P])
		if !ok {
			return nil, errors.Errorf("spdzwise: %T does not support additive conversion",
				p.internal)
		}
		cols = shuffle.NewSecure[P](add)
	} else {
		ps, ok := p.internal.(protocol.PairShuffling[P])
		if !ok {
			return nil, errors.Errorf("spdzwise: %T has no pair shuffler",
				p.internal)
		}
		cols = ps.PairShuffler()
	}
	return &shuffler[P]{
		proto: p,
		cols:  cols,
	}, nil
}

// Shuffle implements protocol.Shuffler.Shuffle. The shuffled shares
// are added to the check buffer.
func (s *shuffler[P]) Shuffle(values []Share[P]) ([]Share[P], error) {
	p := s.proto
	if p.err != nil {
		return nil, p.err
	}
	p.idle("shuffle")

	vs := make([]P, len(values))
	ms := make([]P, len(values))
	for i, v := range values {
		vs[i] = v.V
		ms[i] = v.M
	}
	cols, err := s.cols.ShuffleColumns([][]P{vs, ms})
	if err != nil {
		return nil, p.abort(err)
	}
	result := make([]Share[P], len(values))
	for i := range result {
		result[i] = Share[P]{
			V: cols[0][i],
			M: cols[1][i],
		}
		p.AddToCheck(result[i])
	}
	return result, nil
}
