//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package p2p

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/markkurossi/text/superscript"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var (
	_ Player = &Party{}

	// ErrSequence is returned when a message arrives out of its
	// expected round or from a different session.
	ErrSequence = errors.New("p2p: message out of sequence")
)

// Player implements the point-to-point channels between the parties
// of a computation. Parties are numbered from 0 to NumParties()-1.
type Player interface {
	ID() int
	NumParties() int
	Send(to int, data []byte) error
	Receive(from int) ([]byte, error)
	Broadcast(data []byte) error
	Stats() IOStats
}

// Label returns the display label of the party id.
func Label(id int) string {
	return "P" + superscript.Itoa(id)
}

type envelope struct {
	Session uuid.UUID `cbor:"1,keyasint"`
	Seq     uint64    `cbor:"2,keyasint"`
	Payload []byte    `cbor:"3,keyasint"`
}

// Party implements Player over protocol connections. Every message
// is wrapped in an envelope carrying the session ID and a per-peer
// sequence number, so messages consumed in a different order than
// they were sent are detected.
type Party struct {
	id      int
	session uuid.UUID
	conns   []*Conn
	sent    []uint64
	recvd   []uint64
}

// NewParty creates a new party with the peer connections. The
// connection at index id is ignored.
func NewParty(id int, session uuid.UUID, conns []*Conn) (*Party, error) {
	if id < 0 || id >= len(conns) {
		return nil, errors.Errorf("p2p: invalid party ID %d for %d parties",
			id, len(conns))
	}
	for i, conn := range conns {
		if i != id && conn == nil {
			return nil, errors.Errorf("p2p: no connection to %s", Label(i))
		}
	}
	return &Party{
		id:      id,
		session: session,
		conns:   conns,
		sent:    make([]uint64, len(conns)),
		recvd:   make([]uint64, len(conns)),
	}, nil
}

// ID returns the party ID.
func (p *Party) ID() int {
	return p.id
}

// NumParties returns the number of parties.
func (p *Party) NumParties() int {
	return len(p.conns)
}

// Session returns the session ID.
func (p *Party) Session() uuid.UUID {
	return p.session
}

func (p *Party) String() string {
	return Label(p.id)
}

func (p *Party) conn(peer int) (*Conn, error) {
	if peer == p.id || peer < 0 || peer >= len(p.conns) {
		return nil, errors.Errorf("p2p: %s: invalid peer %d", p, peer)
	}
	return p.conns[peer], nil
}

// Send sends data to the peer.
func (p *Party) Send(to int, data []byte) error {
	conn, err := p.conn(to)
	if err != nil {
		return err
	}
	msg, err := cbor.Marshal(&envelope{
		Session: p.session,
		Seq:     p.sent[to],
		Payload: data,
	})
	if err != nil {
		return errors.Wrap(err, "p2p: encode envelope")
	}
	p.sent[to]++
	if err := conn.SendData(msg); err != nil {
		return err
	}
	return conn.Flush()
}

// Receive receives the next message from the peer.
func (p *Party) Receive(from int) ([]byte, error) {
	conn, err := p.conn(from)
	if err != nil {
		return nil, err
	}
	msg, err := conn.ReceiveData()
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := cbor.Unmarshal(msg, &env); err != nil {
		return nil, errors.Wrap(err, "p2p: decode envelope")
	}
	if env.Session != p.session {
		return nil, errors.Wrapf(ErrSequence, "%s: session %s from %s",
			p, env.Session, Label(from))
	}
	if env.Seq != p.recvd[from] {
		return nil, errors.Wrapf(ErrSequence, "%s: message %d from %s, want %d",
			p, env.Seq, Label(from), p.recvd[from])
	}
	p.recvd[from]++
	return env.Payload, nil
}

// Broadcast sends data to all peers.
func (p *Party) Broadcast(data []byte) error {
	var g errgroup.Group
	for i := range p.conns {
		if i == p.id {
			continue
		}
		to := i
		g.Go(func() error {
			return p.Send(to, data)
		})
	}
	return g.Wait()
}

// Stats returns the I/O statistics summed over all peer connections.
func (p *Party) Stats() IOStats {
	result := NewIOStats()
	for i, conn := range p.conns {
		if i == p.id {
			continue
		}
		result = result.Add(conn.Stats)
	}
	return result
}

// Close closes all peer connections.
func (p *Party) Close() error {
	var first error
	for i, conn := range p.conns {
		if i == p.id {
			continue
		}
		if err := conn.Close(); err != nil && first == nil {
			first = fmt.Errorf("%s: close %s: %w", p, Label(i), err)
		}
	}
	return first
}
