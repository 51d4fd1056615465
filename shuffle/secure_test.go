//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package shuffle

import (
	"fmt"
	"sort"
	"testing"

	"github.com/markkurossi/mpcproto/field"
	"github.com/markkurossi/mpcproto/internal/mpctest"
	"github.com/markkurossi/mpcproto/p2p"
	"github.com/markkurossi/mpcproto/protocol"
	"github.com/markkurossi/mpcproto/shamir"
	"github.com/stretchr/testify/assert"
)

var (
	_ protocol.Shuffler[shamir.Share]       = &Secure[shamir.Share]{}
	_ protocol.ColumnShuffler[shamir.Share] = &Secure[shamir.Share]{}
)

func sorted(v []field.Element) []field.Element {
	result := append([]field.Element(nil), v...)
	sort.Slice(result, func(i, j int) bool {
		return result[i] < result[j]
	})
	return result
}

func TestSecureShuffle(t *testing.T) {
	values := make([]field.Element, 32)
	for i := range values {
		values[i] = field.New(uint64(100 + i))
	}

	for _, c := range []struct{ n, t int }{{3, 1}, {5, 2}} {
		cfg := c
		t.Run(fmt.Sprintf("n=%d", cfg.n), func(t *testing.T) {
			var results [][]field.Element
			results = make([][]field.Element, cfg.n)

			mpctest.Run(t, cfg.n, func(party *p2p.Party) error {
				proto, err := shamir.New(party, cfg.t, nil)
				if err != nil {
					return err
				}
				x, err := proto.Input(0, values, len(values))
				if err != nil {
					return err
				}
				y, err := NewSecure[shamir.Share](proto).Shuffle(x)
				if err != nil {
					return err
				}
				opened, err := proto.Open(y)
				if err != nil {
					return err
				}
				results[party.ID()] = opened
				return nil
			})
			for _, r := range results {
				assert.Equal(t, values, sorted(r))
				assert.Equal(t, results[0], r)
			}
			assert.NotEqual(t, values, results[0])
		})
	}
}

func TestSecureShuffleColumns(t *testing.T) {
	values := []field.Element{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	mpctest.Run(t, 3, func(party *p2p.Party) error {
		proto, err := shamir.New(party, 1, nil)
		if err != nil {
			return err
		}
		x, err := proto.Input(1, values, len(values))
		if err != nil {
			return err
		}
		var y []shamir.Share
		for _, s := range x {
			y = append(y, s.Scale(field.New(10)))
		}
		cols, err := NewSecure[shamir.Share](proto).ShuffleColumns(
			[][]shamir.Share{x, y})
		if err != nil {
			return err
		}
		a, err := proto.Open(cols[0])
		if err != nil {
			return err
		}
		b, err := proto.Open(cols[1])
		if err != nil {
			return err
		}
		for i := range a {
			if a[i].Mul(field.New(10)) != b[i] {
				return fmt.Errorf("columns permuted differently at %d", i)
			}
		}
		return nil
	})
}
