//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package p2p

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestNetwork(t *testing.T) {
	const n = 3
	session := uuid.New()

	networks := make([]*Network, n)
	for i := range networks {
		nw, err := NewNetwork("127.0.0.1:0", i, session)
		require.NoError(t, err)
		defer nw.Close()
		networks[i] = nw
	}
	assert.Error(t, networks[0].AddPeer(networks[0].Addr(), 0))

	var g errgroup.Group
	for _, nw := range networks {
		g.Go(func() error {
			for id, peer := range networks {
				if id == nw.ID {
					continue
				}
				if err := nw.AddPeer(peer.Addr(), id); err != nil {
					return err
				}
			}
			p, err := nw.Party(n)
			if err != nil {
				return err
			}
			data := []byte(fmt.Sprintf("hello from %d", p.ID()))
			all, err := AllGather(p, data)
			if err != nil {
				return err
			}
			for id, msg := range all {
				want := []byte(fmt.Sprintf("hello from %d", id))
				if !bytes.Equal(msg, want) {
					return fmt.Errorf("%s: got %q from %s, want %q",
						Label(p.ID()), msg, Label(id), want)
				}
			}
			if nw.Stats().Sum() == 0 {
				return fmt.Errorf("%s: no traffic", Label(p.ID()))
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
