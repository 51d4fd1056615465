//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

// Package mpctest implements helpers for running multi-party tests
// in-process.
package mpctest

import (
	"testing"

	"github.com/markkurossi/mpcproto/p2p"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Run runs fn for n parties connected with pipes. Each party runs in
// its own goroutine and the test fails if any of them returns an
// error.
func Run(t testing.TB, n int, fn func(p *p2p.Party) error) {
	t.Helper()
	require.NoError(t, RunErr(n, fn))
}

// RunErr runs fn for n parties and returns the first error.
func RunErr(n int, fn func(p *p2p.Party) error) error {
	parties, err := p2p.Mesh(n)
	if err != nil {
		return err
	}
	var g errgroup.Group
	for _, p := range parties {
		party := p
		g.Go(func() error {
			return fn(party)
		})
	}
	return g.Wait()
}

// RunAll runs fn for n parties and returns the error of every party.
// Unlike RunErr, it collects the result of every party. The parties
// must run the same rounds even if some of them fail.
func RunAll(n int, fn func(p *p2p.Party) error) ([]error, error) {
	parties, err := p2p.Mesh(n)
	if err != nil {
		return nil, err
	}
	errs := make([]error, n)
	done := make(chan struct{}, n)
	for i, p := range parties {
		idx := i
		party := p
		go func() {
			errs[idx] = fn(party)
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}
	return errs, nil
}
