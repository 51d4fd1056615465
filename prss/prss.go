//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

// Package prss implements pseudo-random secret sharing. Every subset
// of N-t parties shares a key, and every member of the subset can
// expand the key into the same stream of field elements. The
// linear-secret-sharing schemes combine the streams into random
// shares without interaction.
package prss

import (
	"encoding/binary"
	"io"

	"github.com/google/uuid"
	"github.com/markkurossi/mpcproto/field"
	"github.com/markkurossi/mpcproto/p2p"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20"
)

const (
	keySize  = 32
	maxParty = 64
	randMask = (uint64(1) << field.Bits) - 1
)

// Set is a subset of parties as a bitmask of party IDs.
type Set uint64

// NewSet creates a set from the member IDs.
func NewSet(members ...int) Set {
	var s Set
	for _, m := range members {
		s |= 1 << uint(m)
	}
	return s
}

// Contains tests if the party is a member of the set.
func (s Set) Contains(id int) bool {
	return s&(1<<uint(id)) != 0
}

// Members returns the member IDs in increasing order.
func (s Set) Members() []int {
	var result []int
	for i := 0; i < maxParty; i++ {
		if s.Contains(i) {
			result = append(result, i)
		}
	}
	return result
}

// Min returns the smallest member ID.
func (s Set) Min() int {
	for i := 0; i < maxParty; i++ {
		if s.Contains(i) {
			return i
		}
	}
	return -1
}

// Subsets enumerates all k-element subsets of n parties in
// lexicographic order of their members.
func Subsets(n, k int) []Set {
	var result []Set
	var rec func(start, left int, acc Set)
	rec = func(start, left int, acc Set) {
		if left == 0 {
			result = append(result, acc)
			return
		}
		for i := start; i <= n-left; i++ {
			rec(i+1, left-1, acc|1<<uint(i))
		}
	}
	rec(0, k, 0)
	return result
}

// Source holds this party's PRSS keys and the streams expanded from
// them. All parties must consume the streams in the same order.
type Source struct {
	id      int
	n       int
	t       int
	domain  uuid.UUID
	sets    []Set
	keys    map[Set][keySize]byte
	streams map[Set]*chacha20.Cipher
	// branches counts the branches derived from this source.
	branches uint64
}

// Setup runs the key distribution round. The smallest member of every
// set generates the set key and sends it to the other members. The
// key domain is derived from a common coin, so repeated setups of the
// same parties yield independent streams.
func Setup(p p2p.Player, t int, rand io.Reader) (*Source, error) {
	n := p.NumParties()
	id := p.ID()
	if n > maxParty {
		return nil, errors.Errorf("prss: too many parties: %d", n)
	}
	if t < 1 || 2*t >= n {
		return nil, errors.Errorf("prss: invalid threshold %d for %d parties",
			t, n)
	}
	coin, err := Coin(p, rand)
	if err != nil {
		return nil, err
	}

	src := &Source{
		id:     id,
		n:      n,
		t:      t,
		domain: uuid.NewSHA1(uuid.NameSpaceOID, coin[:]),
		keys:   make(map[Set][keySize]byte),
	}

	out := make([][]byte, n)
	in := make([]bool, n)
	for _, set := range Subsets(n, n-t) {
		if !set.Contains(id) {
			continue
		}
		src.sets = append(src.sets, set)
		owner := set.Min()
		if owner != id {
			in[owner] = true
			continue
		}
		var key [keySize]byte
		if _, err := io.ReadFull(rand, key[:]); err != nil {
			return nil, err
		}
		src.keys[set] = key
		for _, m := range set.Members() {
			if m != id {
				out[m] = append(out[m], key[:]...)
			}
		}
	}

	msgs, err := p2p.ExchangeWith(p, out, in)
	if err != nil {
		return nil, errors.Wrap(err, "prss: key distribution")
	}
	for _, set := range src.sets {
		owner := set.Min()
		if owner == id {
			continue
		}
		msg := msgs[owner]
		if len(msg) < keySize {
			return nil, errors.Errorf("prss: truncated keys from %s",
				p2p.Label(owner))
		}
		var key [keySize]byte
		copy(key[:], msg)
		msgs[owner] = msg[keySize:]
		src.keys[set] = key
	}
	for owner, msg := range msgs {
		if len(msg) != 0 {
			return nil, errors.Errorf("prss: %d extra key bytes from %s",
				len(msg), p2p.Label(owner))
		}
	}
	if err := src.initStreams(); err != nil {
		return nil, err
	}
	jww.DEBUG.Printf("%s: prss: %d keys in domain %s\n",
		p2p.Label(id), len(src.sets), src.domain)

	return src, nil
}

func (src *Source) initStreams() error {
	src.streams = make(map[Set]*chacha20.Cipher)
	ctx := "mpcproto prss " + src.domain.String()
	var nonce [chacha20.NonceSize]byte
	for set, key := range src.keys {
		var derived [keySize]byte
		blake3.DeriveKey(ctx, key[:], derived[:])
		cipher, err := chacha20.NewUnauthenticatedCipher(derived[:], nonce[:])
		if err != nil {
			return err
		}
		src.streams[set] = cipher
	}
	return nil
}

// Branch returns a new source with the same keys and independent
// streams. The branch domain is derived from the name and the number
// of earlier branches of this source, so repeated branches with the
// same name are independent. All parties must branch in the same
// order.
func (src *Source) Branch(name string) *Source {
	var label []byte
	label = binary.BigEndian.AppendUint64(label, src.branches)
	label = append(label, name...)
	src.branches++

	b := &Source{
		id:     src.id,
		n:      src.n,
		t:      src.t,
		domain: uuid.NewSHA1(src.domain, label),
		sets:   src.sets,
		keys:   src.keys,
	}
	if err := b.initStreams(); err != nil {
		// The derived keys and the zero nonce always have valid
		// sizes.
		panic(err)
	}
	return b
}

// ID returns the party ID.
func (src *Source) ID() int {
	return src.id
}

// NumParties returns the number of parties.
func (src *Source) NumParties() int {
	return src.n
}

// Threshold returns the corruption threshold t.
func (src *Source) Threshold() int {
	return src.t
}

// Domain returns the key domain of the source.
func (src *Source) Domain() uuid.UUID {
	return src.domain
}

// Sets returns the sets this party is a member of.
func (src *Source) Sets() []Set {
	return src.sets
}

// Has tests if this party holds the key of the set.
func (src *Source) Has(set Set) bool {
	_, ok := src.streams[set]
	return ok
}

func (src *Source) stream(set Set) *chacha20.Cipher {
	cipher, ok := src.streams[set]
	if !ok {
		panic(errors.Errorf("prss: %s is not a member of set %v",
			p2p.Label(src.id), set.Members()))
	}
	return cipher
}

func (src *Source) uint64(set Set) uint64 {
	var buf [8]byte
	src.stream(set).XORKeyStream(buf[:], buf[:])
	return binary.BigEndian.Uint64(buf[:])
}

// Element returns the next field element from the set's stream.
func (src *Source) Element(set Set) field.Element {
	for {
		v := src.uint64(set) & randMask
		if v < field.P {
			return field.Element(v)
		}
	}
}

// Elements returns the next n field elements from the set's stream.
func (src *Source) Elements(set Set, n int) []field.Element {
	result := make([]field.Element, n)
	for i := range result {
		result[i] = src.Element(set)
	}
	return result
}

// Permutation returns a uniformly random permutation of n elements
// drawn from the set's stream.
func (src *Source) Permutation(set Set, n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := src.uniform(set, uint64(i+1))
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

func (src *Source) uniform(set Set, bound uint64) uint64 {
	limit := ^uint64(0) - (^uint64(0) % bound)
	for {
		v := src.uint64(set)
		if v < limit {
			return v % bound
		}
	}
}
