//
// run.go
//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/markkurossi/mpcproto/env"
	"github.com/markkurossi/mpcproto/field"
	"github.com/markkurossi/mpcproto/hemi"
	"github.com/markkurossi/mpcproto/hemi/bgv"
	"github.com/markkurossi/mpcproto/p2p"
	"github.com/markkurossi/mpcproto/proc"
	"github.com/markkurossi/mpcproto/profile"
	"github.com/markkurossi/mpcproto/protocol"
	"github.com/markkurossi/mpcproto/prss"
	"github.com/markkurossi/mpcproto/rep3"
	"github.com/markkurossi/mpcproto/shamir"
	"github.com/markkurossi/mpcproto/spdzwise"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

type options struct {
	Parties   int
	Scheme    string
	Shape     hemi.Shape
	Matmul    proc.MatmulMode
	Generator string
	Shuffle   int
	Config    *env.Config
}

func optionsFromConfig(v *viper.Viper) (*options, error) {
	mode, err := proc.ParseMatmulMode(v.GetString("matmul"))
	if err != nil {
		return nil, err
	}
	opts := &options{
		Parties: v.GetInt("parties"),
		Scheme:  v.GetString("scheme"),
		Shape: hemi.Shape{
			Rows:  v.GetInt("rows"),
			Inner: v.GetInt("inner"),
			Cols:  v.GetInt("cols"),
		},
		Matmul:    mode,
		Generator: v.GetString("generator"),
		Shuffle:   v.GetInt("shuffle"),
		Config: &env.Config{
			Verbose:    v.GetBool("verbose"),
			CheckBatch: v.GetInt("check-batch"),
			CheckBytes: v.GetUint64("check-bytes"),
		},
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func (opts *options) validate() error {
	switch opts.Scheme {
	case "rep3":
		if opts.Parties != rep3.NumParties {
			return errors.Errorf("rep3 needs %d parties, got %d",
				rep3.NumParties, opts.Parties)
		}
	case "shamir":
		if opts.Parties < 3 {
			return errors.Errorf("shamir needs at least 3 parties, got %d",
				opts.Parties)
		}
	default:
		return errors.Errorf("unknown scheme '%s'", opts.Scheme)
	}
	switch opts.Generator {
	case "protocol", "bgv":
	default:
		return errors.Errorf("unknown generator '%s'", opts.Generator)
	}
	if !opts.Shape.Valid() {
		return errors.Errorf("invalid matrix shape %v", opts.Shape)
	}
	if opts.Shuffle < 0 {
		return errors.Errorf("invalid shuffle size %d", opts.Shuffle)
	}
	return opts.Config.Validate()
}

type result struct {
	timing  *profile.Timing
	stats   p2p.IOStats
	usage   hemi.Usage
	checks  int
	product []field.Element
}

// inputs returns the public test matrices. Party 0 inputs a and
// party 1 inputs b.
func inputs(shape hemi.Shape) (*field.Matrix, *field.Matrix) {
	a := field.NewMatrix(shape.Rows, shape.Inner)
	for i := range a.Data {
		a.Data[i] = field.New(uint64(i + 1))
	}
	b := field.NewMatrix(shape.Inner, shape.Cols)
	for i := range b.Data {
		b.Data[i] = field.FromInt(int64(len(b.Data)/2 - i))
	}
	return a, b
}

func run(opts *options, w io.Writer) error {
	parties, err := p2p.Mesh(opts.Parties)
	if err != nil {
		return err
	}
	results := make([]*result, opts.Parties)

	var g errgroup.Group
	for i, party := range parties {
		g.Go(func() error {
			r, err := runParty(party, opts)
			if err != nil {
				return errors.Wrapf(err, "%s", p2p.Label(i))
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	// Close waits until the peers have read the final round.
	for _, party := range parties {
		if err := party.Close(); err != nil {
			return err
		}
	}

	for i, r := range results {
		if err := verify(opts, r); err != nil {
			return errors.Wrapf(err, "%s", p2p.Label(i))
		}
	}
	report(w, opts, results[0])
	return nil
}

// runNetwork runs one party of a session over TCP. The peers list
// holds the addresses of all parties indexed by party ID.
func runNetwork(opts *options, id int, peers []string, session uuid.UUID,
	w io.Writer) error {

	if id < 0 || id >= len(peers) {
		return errors.Errorf("invalid party ID %d for %d peers", id, len(peers))
	}
	if len(peers) != opts.Parties {
		return errors.Errorf("got %d peers for %d parties",
			len(peers), opts.Parties)
	}
	nw, err := p2p.NewNetwork(peers[id], id, session)
	if err != nil {
		return err
	}
	defer nw.Close()

	for peer, addr := range peers {
		if peer == id {
			continue
		}
		if err := nw.AddPeer(addr, peer); err != nil {
			return err
		}
	}
	party, err := nw.Party(opts.Parties)
	if err != nil {
		return err
	}
	defer party.Close()

	r, err := runParty(party, opts)
	if err != nil {
		return err
	}
	if err := verify(opts, r); err != nil {
		return err
	}
	report(w, opts, r)
	return nil
}

func verify(opts *options, r *result) error {
	a, b := inputs(opts.Shape)
	want, err := a.Mul(b)
	if err != nil {
		return err
	}
	for j, v := range want.Data {
		if r.product[j] != v {
			return errors.Errorf("product element %d: got %v, want %v",
				j, r.product[j], v)
		}
	}
	return nil
}

func report(w io.Writer, opts *options, r *result) {
	fmt.Fprintf(w, "%s: %d parties, shape %v, matmul %v, generator %s\n",
		opts.Scheme, opts.Parties, opts.Shape, opts.Matmul, opts.Generator)
	r.timing.Print(w, r.stats)
	fmt.Fprintf(w, "MAC checks:    %d\n", r.checks)
	fmt.Fprintf(w, "Preprocessing: %v\n", r.usage)
}

func runParty(party *p2p.Party, opts *options) (*result, error) {
	switch opts.Scheme {
	case "rep3":
		part, err := rep3.New(party, opts.Config)
		if err != nil {
			return nil, err
		}
		return session[rep3.Share](party, part, opts)

	case "shamir":
		part, err := shamir.New(party, (opts.Parties-1)/2, opts.Config)
		if err != nil {
			return nil, err
		}
		return session[shamir.Share](party, part, opts)

	default:
		return nil, errors.Errorf("unknown scheme '%s'", opts.Scheme)
	}
}

type meter struct {
	party p2p.Player
	last  uint64
}

func (m *meter) xfer() string {
	sum := m.party.Stats().Sum()
	d := sum - m.last
	m.last = sum
	return profile.FileSize(d).String()
}

func session[P protocol.Linear[P]](party *p2p.Party, part protocol.Honest[P],
	opts *options) (*result, error) {

	type share = spdzwise.Share[P]

	timing := profile.New()
	m := &meter{
		party: party,
	}

	root, err := spdzwise.New[P](part, opts.Config)
	if err != nil {
		return nil, err
	}
	// Each run gets a fresh randomness domain.
	coin, err := prss.Coin(party, opts.Config.GetRandom())
	if err != nil {
		return nil, err
	}
	p, err := root.Branch(fmt.Sprintf("run-%x", coin[:8]))
	if err != nil {
		return nil, err
	}
	var gen hemi.Generator[share]
	switch opts.Generator {
	case "bgv":
		gen, err = bgv.New[share](party, p.Input(), bgv.DefaultParams,
			opts.Config)
		if err != nil {
			return nil, err
		}
	default:
		gen = hemi.NewProtocolGenerator[share](p)
	}
	engine, err := hemi.New[share](p, gen, opts.Config)
	if err != nil {
		return nil, err
	}
	defer engine.Close()
	timing.Sample("Init", m.xfer())

	a, b := inputs(opts.Shape)
	sa, err := p.Input().Input(0, a.Data, len(a.Data))
	if err != nil {
		return nil, err
	}
	sb, err := p.Input().Input(1, b.Data, len(b.Data))
	if err != nil {
		return nil, err
	}
	timing.Sample("Input", m.xfer())

	p.InitMul()
	for _, v := range sa {
		p.PrepareMul(v, v, -1)
	}
	if err := p.Exchange(); err != nil {
		return nil, err
	}
	for range sa {
		p.FinalizeMul(-1)
	}
	start := time.Now()
	if err := p.MaybeCheck(); err != nil {
		return nil, err
	}
	checked := time.Since(start)
	timing.Sample("Mul", m.xfer()).Add("MaybeCheck", checked)

	pr := proc.New[share](0, 0, proc.Options{
		Matmul: opts.Matmul,
	})
	c, err := engine.MatrixMultiply(
		hemi.Matrix[share]{
			Rows: opts.Shape.Rows,
			Cols: opts.Shape.Inner,
			Data: sa,
		},
		hemi.Matrix[share]{
			Rows: opts.Shape.Inner,
			Cols: opts.Shape.Cols,
			Data: sb,
		}, pr)
	if err != nil {
		return nil, err
	}
	timing.Sample("Matmul", m.xfer())

	if opts.Shuffle > 0 {
		values, err := p.RandomsInst(opts.Shuffle)
		if err != nil {
			return nil, err
		}
		if _, err := engine.Shuffle(values); err != nil {
			return nil, err
		}
		timing.Sample("Shuffle", m.xfer())
	}

	product, err := p.Open(c.Data)
	if err != nil {
		return nil, err
	}
	timing.Sample("Open", m.xfer())

	if err := p.Check(); err != nil {
		return nil, err
	}
	timing.Sample("Check", m.xfer())

	return &result{
		timing:  timing,
		stats:   party.Stats(),
		usage:   engine.Usage(),
		checks:  p.Checks(),
		product: product,
	}, nil
}
