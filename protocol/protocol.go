//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

// Package protocol defines the contracts between the secret-sharing
// schemes, the checked multiplication protocol, the shufflers, and
// the matrix engine.
package protocol

import (
	"github.com/markkurossi/mpcproto/field"
	"github.com/markkurossi/mpcproto/p2p"
	"github.com/markkurossi/mpcproto/prss"
	"github.com/pkg/errors"
)

var (
	// ErrInconsistentOpen is returned when the redundant information
	// of an opening does not match.
	ErrInconsistentOpen = errors.New("protocol: inconsistent opening")

	// ErrSequence is returned when the parties' rounds are out of
	// sync.
	ErrSequence = p2p.ErrSequence
)

// Linear defines the local linear operations of a share type.
type Linear[S any] interface {
	Add(o S) S
	Sub(o S) S
	Neg() S
	Scale(c field.Element) S
}

// Protocol implements multiplication and dot products of shares. The
// operations follow the prepare/exchange/finalize pattern: Prepare
// calls enqueue operands without communication, Exchange runs one
// round for all prepared operations, and Finalize calls return the
// results in the order the operations were prepared.
type Protocol[S any] interface {
	InitMul()
	PrepareMul(x, y S, n int)
	Exchange() error
	FinalizeMul(n int) S

	InitDotProd()
	PrepareDotProd(x, y S)
	NextDotProd()
	FinalizeDotProd(length int) S

	// NRelevantPlayers returns the number of parties whose messages
	// are needed for reconstruction.
	NRelevantPlayers() int
}

// Round splits Exchange into its messages so that the rounds of
// several protocol instances over the same party can be sent as one
// network round. Exchange is equivalent to Outgoing, one
// p2p.ExchangeWith, and Incoming.
type Round interface {
	// Outgoing takes the prepared operations into a round and returns
	// the messages to send and the peers to receive from. Both are
	// nil if nothing is prepared.
	Outgoing() (out [][]byte, in []bool, err error)

	// Incoming completes the round with the received messages indexed
	// by sender. The results are available from the Finalize calls.
	Incoming(msgs [][]byte) error
}

// Opener opens shares to all parties.
type Opener[S any] interface {
	Open(values []S) ([]field.Element, error)
}

// Honest defines the complete interface of an honest-majority
// scheme's unchecked protocol.
type Honest[S any] interface {
	Protocol[S]
	Round
	Opener[S]

	// Party returns the communication channel of the protocol.
	Party() p2p.Player

	// Source returns the PRSS source of the protocol.
	Source() *prss.Source

	// Zero returns the constant zero share.
	Zero() S

	// Constant returns a share of the public constant c.
	Constant(c field.Element) S

	// Randoms returns n shares of uniformly random secret values.
	// The shares are derived from PRSS without communication.
	Randoms(n int) []S

	// Input shares the owner's values to all parties. The owner
	// provides n values, others pass nil.
	Input(owner int, values []field.Element, n int) ([]S, error)

	// Branch returns an independent protocol instance over the same
	// party with a derived PRSS domain.
	Branch(name string) Honest[S]

	// VariablePlayers tests if the scheme supports a variable number
	// of parties.
	VariablePlayers() bool
}

// Shuffler shuffles a vector of shares with a secret permutation.
type Shuffler[S any] interface {
	Shuffle(values []S) ([]S, error)
}

// ColumnShuffler shuffles several equal-length vectors with the same
// secret permutation.
type ColumnShuffler[S any] interface {
	ShuffleColumns(cols [][]S) ([][]S, error)
}

// Additive is implemented by schemes that can convert shares into
// additive shares over a PRSS set and back.
type Additive[S any] interface {
	Honest[S]

	// ToAdditive converts the share into an additive share over the
	// set. The additive shares of the set members sum to the shared
	// value. Only set members may call it.
	ToAdditive(set prss.Set, x S) field.Element

	// ShareAdditive shares the members' additive vectors to all
	// parties in one round. The result shares the sum of the
	// members' vectors. Members pass their vectors, others pass
	// nil.
	ShareAdditive(set prss.Set, local []field.Element, n int) ([]S, error)
}

// PairShuffling is implemented by fixed-party schemes that provide a
// dedicated shuffler.
type PairShuffling[S any] interface {
	PairShuffler() ColumnShuffler[S]
}

// Columns checks that all columns have the same length and returns
// the length.
func Columns[S any](cols [][]S) (int, error) {
	if len(cols) == 0 {
		return 0, nil
	}
	n := len(cols[0])
	for i, col := range cols {
		if len(col) != n {
			return 0, errors.Errorf("protocol: column %d has %d rows, want %d",
				i, len(col), n)
		}
	}
	return n, nil
}
