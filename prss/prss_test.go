//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package prss

import (
	"crypto/rand"
	"sync"
	"testing"

	"github.com/markkurossi/mpcproto/field"
	"github.com/markkurossi/mpcproto/p2p"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func setup(t *testing.T, n, threshold int) []*Source {
	parties, err := p2p.Mesh(n)
	require.NoError(t, err)

	sources := make([]*Source, n)
	var g errgroup.Group
	for i, p := range parties {
		idx := i
		party := p
		g.Go(func() error {
			src, err := Setup(party, threshold, rand.Reader)
			sources[idx] = src
			return err
		})
	}
	require.NoError(t, g.Wait())
	return sources
}

func TestSubsets(t *testing.T) {
	sets := Subsets(3, 2)
	assert.Equal(t, []Set{NewSet(0, 1), NewSet(0, 2), NewSet(1, 2)}, sets)
	assert.Len(t, Subsets(5, 3), 10)
	assert.Equal(t, []int{1, 3}, NewSet(3, 1).Members())
	assert.Equal(t, 1, NewSet(3, 1).Min())
}

func TestStreams(t *testing.T) {
	sources := setup(t, 5, 2)

	for _, set := range Subsets(5, 3) {
		var first []field.Element
		for _, src := range sources {
			if !set.Contains(src.ID()) {
				assert.False(t, src.Has(set))
				continue
			}
			v := src.Elements(set, 8)
			if first == nil {
				first = v
			} else {
				assert.Equal(t, first, v)
			}
		}
	}
	assert.Equal(t, sources[0].Domain(), sources[4].Domain())
}

func TestBranch(t *testing.T) {
	sources := setup(t, 3, 1)
	set := NewSet(0, 1)

	b0 := sources[0].Branch("test")
	b1 := sources[1].Branch("test")
	other := sources[0].Branch("other")

	v0 := b0.Elements(set, 4)
	assert.Equal(t, v0, b1.Elements(set, 4))
	assert.NotEqual(t, v0, other.Elements(set, 4))
	assert.NotEqual(t, v0, sources[0].Elements(set, 4))
}

func TestBranchSameName(t *testing.T) {
	sources := setup(t, 3, 1)
	set := NewSet(0, 1)

	first0 := sources[0].Branch("worker")
	second0 := sources[0].Branch("worker")
	first1 := sources[1].Branch("worker")
	second1 := sources[1].Branch("worker")

	assert.NotEqual(t, first0.Domain(), second0.Domain())

	v := first0.Elements(set, 4)
	w := second0.Elements(set, 4)
	assert.NotEqual(t, v, w)
	assert.Equal(t, v, first1.Elements(set, 4))
	assert.Equal(t, w, second1.Elements(set, 4))

	// Nested branches follow the same rule.
	n0 := first0.Branch("mac")
	n1 := first1.Branch("mac")
	assert.Equal(t, n0.Elements(set, 2), n1.Elements(set, 2))
	assert.NotEqual(t, n0.Domain(), first0.Branch("mac").Domain())
}

func TestPermutation(t *testing.T) {
	sources := setup(t, 3, 1)
	set := NewSet(1, 2)

	p1 := sources[1].Permutation(set, 50)
	p2 := sources[2].Permutation(set, 50)
	assert.Equal(t, p1, p2)

	seen := make(map[int]bool)
	for _, v := range p1 {
		seen[v] = true
	}
	assert.Len(t, seen, 50)
}

func TestCoin(t *testing.T) {
	parties, err := p2p.Mesh(4)
	require.NoError(t, err)

	var m sync.Mutex
	coins := make(map[[CoinSize]byte]int)
	var g errgroup.Group
	for _, p := range parties {
		party := p
		g.Go(func() error {
			coin, err := Coin(party, rand.Reader)
			m.Lock()
			coins[coin]++
			m.Unlock()
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, coins, 1)
}
