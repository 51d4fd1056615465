//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package prss

import (
	"io"

	"github.com/markkurossi/mpcproto/p2p"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

// CoinSize is the size of the common coin in bytes.
const CoinSize = 32

// Coin runs a common coin round. Every party contributes a random
// seed, and the coin is the BLAKE3 hash of all seeds in party order.
// The coin is public and unpredictable as long as one party is
// honest, but it is not protected against a rushing adversary. It is
// only used for domain separation.
func Coin(p p2p.Player, rand io.Reader) ([CoinSize]byte, error) {
	var coin [CoinSize]byte

	seed := make([]byte, CoinSize)
	if _, err := io.ReadFull(rand, seed); err != nil {
		return coin, err
	}
	seeds, err := p2p.AllGather(p, seed)
	if err != nil {
		return coin, errors.Wrap(err, "prss: coin")
	}
	h := blake3.New()
	for i, s := range seeds {
		if len(s) != CoinSize {
			return coin, errors.Errorf("prss: invalid coin seed from %s",
				p2p.Label(i))
		}
		h.Write(s)
	}
	copy(coin[:], h.Sum(nil))
	return coin, nil
}
