//
// Copyright (c) 2020-2025 Markku Rossi
//
// All rights reserved.
//

package p2p

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Network implements peer-to-peer network.
type Network struct {
	ID       int
	Session  uuid.UUID
	m        sync.Mutex
	c        *sync.Cond
	Peers    map[int]*Peer
	addr     string
	listener net.Listener
}

// NewNetwork creats a new peer-to-peer network.
func NewNetwork(addr string, id int, session uuid.UUID) (*Network, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	nw := &Network{
		ID:       id,
		Session:  session,
		Peers:    make(map[int]*Peer),
		addr:     addr,
		listener: listener,
	}
	nw.c = sync.NewCond(&nw.m)
	go nw.acceptLoop()
	return nw, nil
}

// Close closes the network.
func (nw *Network) Close() error {
	return nw.listener.Close()
}

// Addr returns the listening address of the network.
func (nw *Network) Addr() string {
	return nw.listener.Addr().String()
}

// AddPeer adds a peer to the network. The party with the smaller ID
// dials and the other one waits for the inbound connection, so each
// pair of parties has exactly one connection.
func (nw *Network) AddPeer(addr string, id int) error {
	if id == nw.ID {
		return errors.Errorf("p2p: %s can't peer with itself", Label(id))
	}
	if id < nw.ID {
		nw.m.Lock()
		for nw.Peers[id] == nil {
			nw.c.Wait()
		}
		nw.m.Unlock()
		return nil
	}
	for {
		// Check if we have already accepted peer `id`.
		nw.m.Lock()
		_, ok := nw.Peers[id]
		nw.m.Unlock()
		if ok {
			return nil
		}

		jww.DEBUG.Printf("%s: connecting to %s...\n", Label(nw.ID), Label(id))
		nc, err := net.Dial("tcp", addr)
		if err != nil {
			delay := 5 * time.Second
			jww.INFO.Printf("%s: connect to %s failed, retrying in %s\n",
				Label(nw.ID), addr, delay)
			<-time.After(delay)
			continue
		}
		jww.DEBUG.Printf("%s: connected to %s\n", Label(nw.ID), addr)
		conn := NewConn(nc)

		if err := nw.sendHello(conn); err != nil {
			conn.Close()
			return err
		}
		if err := nw.newPeer(true, conn, id); err != nil {
			jww.WARN.Printf("%s: failed to add peer: %s\n", Label(nw.ID), err)
		}
	}
}

func (nw *Network) sendHello(conn *Conn) error {
	if err := conn.SendUint32(nw.ID); err != nil {
		return err
	}
	if err := conn.SendString(nw.Session.String()); err != nil {
		return err
	}
	return conn.Flush()
}

// Party waits until the network has connections to all n-1 peers and
// returns the party over them.
func (nw *Network) Party(n int) (*Party, error) {
	nw.m.Lock()
	for len(nw.Peers) < n-1 {
		nw.c.Wait()
	}
	conns := make([]*Conn, n)
	for id, peer := range nw.Peers {
		if id < 0 || id >= n || id == nw.ID {
			nw.m.Unlock()
			return nil, errors.Errorf("p2p: unexpected peer %s", Label(id))
		}
		conns[id] = peer.conn
	}
	nw.m.Unlock()

	return NewParty(nw.ID, nw.Session, conns)
}

// Stats returns the I/O stats from the network.
func (nw *Network) Stats() IOStats {
	nw.m.Lock()
	defer nw.m.Unlock()

	result := NewIOStats()
	for _, peer := range nw.Peers {
		result = result.Add(peer.conn.Stats)
	}
	return result
}

func (nw *Network) acceptLoop() {
	for {
		nc, err := nw.listener.Accept()
		if err != nil {
			jww.DEBUG.Printf("%s: accept failed: %s\n", Label(nw.ID), err)
			return
		}
		conn := NewConn(nc)

		// Read peer ID and session.
		id, err := conn.ReceiveUint32()
		if err != nil {
			jww.WARN.Printf("%s: I/O error: %s\n", Label(nw.ID), err)
			conn.Close()
			continue
		}
		session, err := conn.ReceiveString()
		if err != nil {
			jww.WARN.Printf("%s: I/O error: %s\n", Label(nw.ID), err)
			conn.Close()
			continue
		}
		if session != nw.Session.String() {
			jww.WARN.Printf("%s: %s in session %s, want %s\n",
				Label(nw.ID), Label(id), session, nw.Session)
			conn.Close()
			continue
		}

		err = nw.newPeer(false, conn, id)
		if err != nil {
			jww.WARN.Printf("%s: inbound connection error: %s\n",
				Label(nw.ID), err)
		}
	}
}

func (nw *Network) newPeer(client bool, conn *Conn, id int) error {
	nw.m.Lock()
	_, ok := nw.Peers[id]
	if ok {
		nw.m.Unlock()
		jww.DEBUG.Printf("%s: peer %s already connected\n",
			Label(nw.ID), Label(id))
		return conn.Close()
	}
	nw.Peers[id] = &Peer{
		id:     id,
		conn:   conn,
		client: client,
	}
	nw.c.Broadcast()
	nw.m.Unlock()

	jww.INFO.Printf("%s: peer %s connected\n", Label(nw.ID), Label(id))
	return nil
}

// Peer implements a peer in the peer-to-peer network.
type Peer struct {
	id     int
	conn   *Conn
	client bool
}

// Close closes the peer connection.
func (peer *Peer) Close() error {
	return peer.conn.Close()
}
