//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package p2p

import (
	"io"

	"github.com/google/uuid"
)

// Pipe implements the Conn interface as a bidirectional communication
// pipe. Anything send to the first endpoint can be received from the
// second and vice versa.
func Pipe() (*Conn, *Conn) {
	var p0, p1 pipe

	p0.r, p1.w = io.Pipe()
	p1.r, p0.w = io.Pipe()

	return NewConn(&p0), NewConn(&p1)
}

// Mesh creates n in-process parties connected pairwise with pipes.
// All parties share a fresh session ID.
func Mesh(n int) ([]*Party, error) {
	session := uuid.New()
	conns := make([][]*Conn, n)
	for i := range conns {
		conns[i] = make([]*Conn, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			conns[i][j], conns[j][i] = Pipe()
		}
	}
	parties := make([]*Party, n)
	for i := range parties {
		p, err := NewParty(i, session, conns[i])
		if err != nil {
			return nil, err
		}
		parties[i] = p
	}
	return parties, nil
}

type pipe struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p *pipe) Close() error {
	if err := p.r.Close(); err != nil {
		return err
	}
	return p.w.Close()
}

func (p *pipe) Read(data []byte) (n int, err error) {
	return p.r.Read(data)
}

func (p *pipe) Write(data []byte) (n int, err error) {
	return p.w.Write(data)
}
