//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package p2p

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ExchangeWith runs one communication round. The party sends out[j]
// to every peer j with a non-nil out[j] and receives a message from
// every peer j with in[j] set. All sends and receives run
// concurrently so that peers blocking on full pipes cannot deadlock
// each other. The returned slice holds the received messages indexed
// by the sender.
func ExchangeWith(p Player, out [][]byte, in []bool) ([][]byte, error) {
	n := p.NumParties()
	id := p.ID()
	result := make([][]byte, n)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		if i == id {
			continue
		}
		peer := i
		if peer < len(out) && out[peer] != nil {
			g.Go(func() error {
				return p.Send(peer, out[peer])
			})
		}
		if peer < len(in) && in[peer] {
			g.Go(func() error {
				data, err := p.Receive(peer)
				if err != nil {
					return err
				}
				result[peer] = data
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// Exchange runs an all-to-all round: the party sends out[j] to every
// peer j and receives one message from every peer. A nil out[j] is
// sent as an empty message.
func Exchange(p Player, out [][]byte) ([][]byte, error) {
	n := p.NumParties()
	msgs := make([][]byte, n)
	in := make([]bool, n)
	for i := 0; i < n; i++ {
		if i == p.ID() {
			continue
		}
		if i < len(out) && out[i] != nil {
			msgs[i] = out[i]
		} else {
			msgs[i] = []byte{}
		}
		in[i] = true
	}
	return ExchangeWith(p, msgs, in)
}

// AllGather sends data to all peers and receives their data. The
// result holds each party's data indexed by party ID, including
// this party's own data.
func AllGather(p Player, data []byte) ([][]byte, error) {
	n := p.NumParties()
	out := make([][]byte, n)
	for i := range out {
		out[i] = data
	}
	result, err := Exchange(p, out)
	if err != nil {
		return nil, err
	}
	result[p.ID()] = data
	return result, nil
}

// ExchangeBundle runs the rounds of several protocol instances as one
// round. The messages outs[k][j] of all instances k to peer j are
// sent as one message, and a message is received from every peer j
// with any ins[k][j] set. The result holds the received messages
// indexed by instance and sender.
func ExchangeBundle(p Player, outs [][][]byte, ins [][]bool) (
	[][][]byte, error) {

	if len(outs) != len(ins) {
		return nil, errors.Errorf("p2p: %d outputs for %d inputs",
			len(outs), len(ins))
	}
	n := p.NumParties()
	k := len(outs)

	out := make([][]byte, n)
	in := make([]bool, n)
	for j := 0; j < n; j++ {
		if j == p.ID() {
			continue
		}
		parts := make([][]byte, k)
		var send bool
		for i := 0; i < k; i++ {
			if j < len(outs[i]) && outs[i][j] != nil {
				parts[i] = outs[i][j]
				send = true
			}
			if j < len(ins[i]) && ins[i][j] {
				in[j] = true
			}
		}
		if !send {
			continue
		}
		msg, err := cbor.Marshal(parts)
		if err != nil {
			return nil, errors.Wrap(err, "p2p: encode bundle")
		}
		out[j] = msg
	}

	msgs, err := ExchangeWith(p, out, in)
	if err != nil {
		return nil, err
	}

	result := make([][][]byte, k)
	for i := range result {
		result[i] = make([][]byte, n)
	}
	for j, msg := range msgs {
		if !in[j] {
			continue
		}
		var parts [][]byte
		if err := cbor.Unmarshal(msg, &parts); err != nil {
			return nil, errors.Wrapf(err, "p2p: decode bundle from %s",
				Label(j))
		}
		if len(parts) != k {
			return nil, errors.Wrapf(ErrSequence,
				"p2p: bundle of %d messages from %s, want %d",
				len(parts), Label(j), k)
		}
		for i, part := range parts {
			result[i][j] = part
		}
	}
	return result, nil
}
