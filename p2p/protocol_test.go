//
// protocol_test.go
//
// Copyright (c) 2023-2025 Markku Rossi
//
// All rights reserved.
//

package p2p

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pattern(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i * 7)
	}
	return buf
}

var tests = []interface{}{
	uint32(44),
	"Hello, world!",
	pattern(1024),
	pattern(2 * 1024 * 1024),
	pattern(64*1024 + 3),
}

func writer(c *Conn) {
	for _, test := range tests {
		switch d := test.(type) {
		case uint32:
			if err := c.SendUint32(int(d)); err != nil {
				fmt.Printf("SendUint32: %v\n", err)
			}

		case string:
			if err := c.SendString(d); err != nil {
				fmt.Printf("SendString: %v\n", err)
			}

		case []byte:
			if err := c.SendData(d); err != nil {
				fmt.Printf("SendData [%v]byte: %v\n", len(d), err)
			}

		default:
			fmt.Printf("writer: invalid data: %v(%T)\n", test, test)
		}
	}
	if err := c.Flush(); err != nil {
		fmt.Printf("Flush: %v\n", err)
	}
}

func TestProtocol(t *testing.T) {
	cw, c := Pipe()

	go writer(cw)

	for _, test := range tests {
		switch d := test.(type) {
		case uint32:
			v, err := c.ReceiveUint32()
			require.NoError(t, err)
			assert.Equal(t, int(d), v)

		case string:
			v, err := c.ReceiveString()
			require.NoError(t, err)
			assert.Equal(t, d, v)

		case []byte:
			v, err := c.ReceiveData()
			require.NoError(t, err)
			assert.True(t, bytes.Equal(d, v), "data of %d bytes", len(d))

		default:
			t.Errorf("invalid value: %v(%T)", test, test)
		}
	}
	assert.NoError(t, c.Close())
}

func TestCloseFlushes(t *testing.T) {
	c0, c1 := Pipe()

	received := make(chan []byte, 1)
	go func() {
		v, err := c1.ReceiveData()
		if err != nil {
			v = nil
		}
		received <- v
	}()

	require.NoError(t, c0.SendData([]byte("last round")))
	require.NoError(t, c0.Close())
	assert.Equal(t, []byte("last round"), <-received)
}

func TestPartyCloseAfterSend(t *testing.T) {
	parties, err := Mesh(2)
	require.NoError(t, err)

	received := make(chan error, 1)
	go func() {
		data, err := parties[1].Receive(0)
		if err == nil && string(data) != "last round" {
			err = fmt.Errorf("received %q", data)
		}
		received <- err
	}()

	require.NoError(t, parties[0].Send(1, []byte("last round")))
	require.NoError(t, parties[0].Close())
	assert.NoError(t, <-received)
	assert.NoError(t, parties[1].Close())
}
