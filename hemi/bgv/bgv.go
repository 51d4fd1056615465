//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

// Package bgv implements matrix triple generation with the BGV
// semi-homomorphic encryption scheme. Every party samples additive
// shares of the triple operands and the cross products of the
// parties' shares are computed pairwise under encryption: party i
// sends its encrypted operand to party j, and j returns the encrypted
// product with its own operand minus a random mask.
//
// The replies are not noise flooded. The noise of a decrypted reply
// depends on the replying party's operand share, so the generator
// protects the operands only against parties that do not analyse the
// decryption noise. The MAC check of the engine does not detect such
// leakage.
package bgv

import (
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/markkurossi/mpcproto/env"
	"github.com/markkurossi/mpcproto/field"
	"github.com/markkurossi/mpcproto/hemi"
	"github.com/markkurossi/mpcproto/p2p"
	"github.com/markkurossi/mpcproto/protocol"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
)

// DefaultParams define the default BGV parameters. The plaintext
// modulus is the field prime so that the slots compute field
// products.
var DefaultParams = bgv.ParametersLiteral{
	LogN:             14,
	LogQ:             []int{60, 60, 60},
	LogP:             []int{60},
	PlaintextModulus: field.P,
}

// Inputter shares a party's private values with all parties.
type Inputter[S any] interface {
	Input(owner int, values []field.Element, n int) ([]S, error)
}

// Generator implements hemi.Generator with pairwise BGV
// multiplications.
type Generator[S protocol.Linear[S]] struct {
	party     p2p.Player
	in        Inputter[S]
	rand      io.Reader
	params    bgv.Parameters
	encoder   *bgv.Encoder
	eval      *bgv.Evaluator
	decryptor *rlwe.Decryptor
	encryptor *rlwe.Encryptor
	peers     []*rlwe.Encryptor
	generated int
}

// New creates a new generator and exchanges the parties' public keys
// in one round.
func New[S protocol.Linear[S]](party p2p.Player, in Inputter[S],
	lit bgv.ParametersLiteral, cfg *env.Config) (*Generator[S], error) {

	params, err := bgv.NewParametersFromLiteral(lit)
	if err != nil {
		return nil, errors.Wrap(err, "bgv: invalid parameters")
	}
	if params.PlaintextModulus() != field.P {
		return nil, errors.Errorf("bgv: plaintext modulus %d, want %d",
			params.PlaintextModulus(), field.P)
	}

	kgen := rlwe.NewKeyGenerator(params)
	sk := kgen.GenSecretKeyNew()
	pk := kgen.GenPublicKeyNew(sk)

	data, err := pk.MarshalBinary()
	if err != nil {
		return nil, err
	}
	keys, err := p2p.AllGather(party, data)
	if err != nil {
		return nil, err
	}
	gen := &Generator[S]{
		party:     party,
		in:        in,
		rand:      cfg.GetRandom(),
		params:    params,
		encoder:   bgv.NewEncoder(params),
		eval:      bgv.NewEvaluator(params, nil),
		decryptor: rlwe.NewDecryptor(params, sk),
		encryptor: rlwe.NewEncryptor(params, pk),
		peers:     make([]*rlwe.Encryptor, party.NumParties()),
	}
	for i, key := range keys {
		if i == party.ID() {
			gen.peers[i] = gen.encryptor
			continue
		}
		peerKey := new(rlwe.PublicKey)
		if err := peerKey.UnmarshalBinary(key); err != nil {
			return nil, errors.Wrapf(err, "bgv: public key of %s",
				p2p.Label(i))
		}
		gen.peers[i] = rlwe.NewEncryptor(params, peerKey)
	}
	jww.INFO.Printf("bgv: %s: generator ready: logN=%d, slots=%d\n",
		p2p.Label(party.ID()), params.LogN(), params.MaxSlots())
	return gen, nil
}

// Generated returns the number of triples generated.
func (gen *Generator[S]) Generated() int {
	return gen.generated
}

// Generate implements hemi.Generator.Generate.
func (gen *Generator[S]) Generate(shape hemi.Shape) (hemi.MatrixPrep[S], error) {
	if !shape.Valid() {
		return nil, errors.Errorf("bgv: invalid shape %v", shape)
	}
	t, err := gen.triple(shape)
	if err != nil {
		return nil, err
	}
	return &prep[S]{
		gen:      gen,
		shape:    shape,
		buffered: []hemi.Triple[S]{t},
	}, nil
}

// expandX lays out x so that slot (r*cols+c)*inner+l holds x[r][l].
func expandX(x *field.Matrix, cols int) []uint64 {
	result := make([]uint64, x.Rows*cols*x.Cols)
	for r := 0; r < x.Rows; r++ {
		for c := 0; c < cols; c++ {
			for l := 0; l < x.Cols; l++ {
				result[(r*cols+c)*x.Cols+l] = x.At(r, l).Uint64()
			}
		}
	}
	return result
}

// expandY lays out y so that slot (r*cols+c)*inner+l holds y[l][c].
func expandY(y *field.Matrix, rows int) []uint64 {
	result := make([]uint64, rows*y.Cols*y.Rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < y.Cols; c++ {
			for l := 0; l < y.Rows; l++ {
				result[(r*y.Cols+c)*y.Rows+l] = y.At(l, c).Uint64()
			}
		}
	}
	return result
}

// collapse sums the inner products of the slot layout into a
// rows×cols matrix.
func collapse(slots []field.Element, shape hemi.Shape) *field.Matrix {
	result := field.NewMatrix(shape.Rows, shape.Cols)
	for i, v := range slots {
		idx := i / shape.Inner
		result.Data[idx] = result.Data[idx].Add(v)
	}
	return result
}

// chunks splits the slot vector into plaintext-sized chunks.
func (gen *Generator[S]) chunks(values []uint64) [][]uint64 {
	slots := gen.params.MaxSlots()
	var result [][]uint64
	for len(values) > 0 {
		n := min(slots, len(values))
		chunk := make([]uint64, slots)
		copy(chunk, values[:n])
		result = append(result, chunk)
		values = values[n:]
	}
	return result
}

func (gen *Generator[S]) encode(values []uint64) (*rlwe.Plaintext, error) {
	pt := bgv.NewPlaintext(gen.params, gen.params.MaxLevel())
	if err := gen.encoder.Encode(values, pt); err != nil {
		return nil, err
	}
	return pt, nil
}

func (gen *Generator[S]) decrypt(ct *rlwe.Ciphertext) ([]uint64, error) {
	pt := bgv.NewPlaintext(gen.params, ct.Level())
	gen.decryptor.Decrypt(ct, pt)
	values := make([]uint64, gen.params.MaxSlots())
	if err := gen.encoder.Decode(pt, values); err != nil {
		return nil, err
	}
	return values, nil
}

func marshalCiphertexts(cts []*rlwe.Ciphertext) ([]byte, error) {
	var list [][]byte
	for _, ct := range cts {
		data, err := ct.MarshalBinary()
		if err != nil {
			return nil, err
		}
		list = append(list, data)
	}
	return cbor.Marshal(list)
}

func unmarshalCiphertexts(data []byte, count int) ([]*rlwe.Ciphertext, error) {
	var list [][]byte
	if err := cbor.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	if len(list) != count {
		return nil, errors.Errorf("bgv: received %d ciphertexts, want %d",
			len(list), count)
	}
	result := make([]*rlwe.Ciphertext, count)
	for i, d := range list {
		ct := new(rlwe.Ciphertext)
		if err := ct.UnmarshalBinary(d); err != nil {
			return nil, err
		}
		result[i] = ct
	}
	return result, nil
}

// products computes the additive shares of the cross products of the
// parties' operand shares. The result is this party's additive share
// of sum_{i!=j} X_i·Y_j.
func (gen *Generator[S]) products(shape hemi.Shape, x, y *field.Matrix) (
	*field.Matrix, error) {

	n := gen.party.NumParties()
	id := gen.party.ID()
	size := shape.Rows * shape.Inner * shape.Cols

	// Round 1: encrypt the expanded X share under the own key.
	xChunks := gen.chunks(expandX(x, shape.Cols))
	var cts []*rlwe.Ciphertext
	for _, chunk := range xChunks {
		pt, err := gen.encode(chunk)
		if err != nil {
			return nil, err
		}
		ct, err := gen.encryptor.EncryptNew(pt)
		if err != nil {
			return nil, err
		}
		cts = append(cts, ct)
	}
	data, err := marshalCiphertexts(cts)
	if err != nil {
		return nil, err
	}
	encX, err := p2p.AllGather(gen.party, data)
	if err != nil {
		return nil, err
	}

	// Round 2: multiply every peer's X by the own Y and mask the
	// product with a fresh random vector encrypted under the peer's
	// key. The masks are this party's share of the cross product.
	yChunks := gen.chunks(expandY(y, shape.Rows))
	yPts := make([]*rlwe.Plaintext, len(yChunks))
	for i, chunk := range yChunks {
		yPts[i], err = gen.encode(chunk)
		if err != nil {
			return nil, err
		}
	}
	masks := make([]field.Element, size)
	out := make([][]byte, n)
	for peer := 0; peer < n; peer++ {
		if peer == id {
			continue
		}
		peerCts, err := unmarshalCiphertexts(encX[peer], len(yChunks))
		if err != nil {
			return nil, errors.Wrapf(err, "bgv: ciphertexts from %s",
				p2p.Label(peer))
		}
		var replies []*rlwe.Ciphertext
		for i, ct := range peerCts {
			r, err := field.RandomVector(gen.rand, gen.params.MaxSlots())
			if err != nil {
				return nil, err
			}
			raw := make([]uint64, len(r))
			for j, v := range r {
				raw[j] = v.Uint64()
				if idx := i*gen.params.MaxSlots() + j; idx < size {
					masks[idx] = masks[idx].Add(v)
				}
			}
			rPt, err := gen.encode(raw)
			if err != nil {
				return nil, err
			}
			encR, err := gen.peers[peer].EncryptNew(rPt)
			if err != nil {
				return nil, err
			}
			prod, err := gen.eval.MulNew(ct, yPts[i])
			if err != nil {
				return nil, err
			}
			if err := gen.eval.Sub(prod, encR, prod); err != nil {
				return nil, err
			}
			replies = append(replies, prod)
		}
		out[peer], err = marshalCiphertexts(replies)
		if err != nil {
			return nil, err
		}
	}
	replies, err := p2p.Exchange(gen.party, out)
	if err != nil {
		return nil, err
	}

	// Decrypt X_id·Y_peer - R from every peer.
	slots := make([]field.Element, size)
	copy(slots, masks)
	for peer := 0; peer < n; peer++ {
		if peer == id {
			continue
		}
		peerCts, err := unmarshalCiphertexts(replies[peer], len(xChunks))
		if err != nil {
			return nil, errors.Wrapf(err, "bgv: products from %s",
				p2p.Label(peer))
		}
		for i, ct := range peerCts {
			values, err := gen.decrypt(ct)
			if err != nil {
				return nil, err
			}
			for j, v := range values {
				if idx := i*gen.params.MaxSlots() + j; idx < size {
					slots[idx] = slots[idx].Add(field.New(v))
				}
			}
		}
	}
	return collapse(slots, shape), nil
}

// triple generates one matrix triple and converts the parties'
// additive shares into scheme shares.
func (gen *Generator[S]) triple(shape hemi.Shape) (hemi.Triple[S], error) {
	x := field.NewMatrix(shape.Rows, shape.Inner)
	y := field.NewMatrix(shape.Inner, shape.Cols)
	var err error
	x.Data, err = field.RandomVector(gen.rand, len(x.Data))
	if err != nil {
		return hemi.Triple[S]{}, err
	}
	y.Data, err = field.RandomVector(gen.rand, len(y.Data))
	if err != nil {
		return hemi.Triple[S]{}, err
	}
	z, err := x.Mul(y)
	if err != nil {
		return hemi.Triple[S]{}, err
	}
	cross, err := gen.products(shape, x, y)
	if err != nil {
		return hemi.Triple[S]{}, err
	}
	for i, v := range cross.Data {
		z.Data[i] = z.Data[i].Add(v)
	}

	local := make([]field.Element, 0, shape.Elements())
	local = append(local, x.Data...)
	local = append(local, y.Data...)
	local = append(local, z.Data...)

	var sum []S
	for owner := 0; owner < gen.party.NumParties(); owner++ {
		var values []field.Element
		if owner == gen.party.ID() {
			values = local
		}
		shares, err := gen.in.Input(owner, values, len(local))
		if err != nil {
			return hemi.Triple[S]{}, err
		}
		if sum == nil {
			sum = shares
			continue
		}
		for i := range sum {
			sum[i] = sum[i].Add(shares[i])
		}
	}

	nx := shape.Rows * shape.Inner
	ny := shape.Inner * shape.Cols
	gen.generated++
	return hemi.Triple[S]{
		X: hemi.Matrix[S]{
			Rows: shape.Rows,
			Cols: shape.Inner,
			Data: sum[:nx],
		},
		Y: hemi.Matrix[S]{
			Rows: shape.Inner,
			Cols: shape.Cols,
			Data: sum[nx : nx+ny],
		},
		Z: hemi.Matrix[S]{
			Rows: shape.Rows,
			Cols: shape.Cols,
			Data: sum[nx+ny:],
		},
	}, nil
}

type prep[S protocol.Linear[S]] struct {
	gen      *Generator[S]
	shape    hemi.Shape
	buffered []hemi.Triple[S]
	closed   bool
}

func (p *prep[S]) Shape() hemi.Shape {
	return p.shape
}

func (p *prep[S]) Triple() (hemi.Triple[S], error) {
	if p.closed {
		return hemi.Triple[S]{}, hemi.ErrClosed
	}
	if len(p.buffered) > 0 {
		t := p.buffered[0]
		p.buffered = p.buffered[1:]
		return t, nil
	}
	return p.gen.triple(p.shape)
}

func (p *prep[S]) Close() error {
	p.closed = true
	p.buffered = nil
	return nil
}
