//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

// Package proc implements the processor state and the instruction
// arguments that the matrix engine consumes.
package proc

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrOutOfRange is returned when an instruction addresses registers
// or memory outside the processor state.
var ErrOutOfRange = errors.New("proc: address out of range")

// MatmulMode selects the matrix multiplication strategy.
type MatmulMode int

// Matrix multiplication modes.
const (
	MatmulAuto MatmulMode = iota
	MatmulPlain
	MatmulHE
)

var matmulModes = map[MatmulMode]string{
	MatmulAuto:  "auto",
	MatmulPlain: "plain",
	MatmulHE:    "he",
}

func (m MatmulMode) String() string {
	name, ok := matmulModes[m]
	if ok {
		return name
	}
	return fmt.Sprintf("{MatmulMode %d}", m)
}

// ParseMatmulMode parses the matrix multiplication mode name.
func ParseMatmulMode(name string) (MatmulMode, error) {
	for mode, n := range matmulModes {
		if strings.EqualFold(n, name) {
			return mode, nil
		}
	}
	return MatmulAuto, errors.Errorf("proc: unknown matmul mode '%s'", name)
}

// Options define per-run processor options.
type Options struct {
	Matmul MatmulMode
}

// Processor holds the secret register file and the secret memory.
type Processor[S any] struct {
	Registers []S
	Memory    []S
	Options   Options
}

// New creates a processor with the given register file and memory
// sizes.
func New[S any](registers, memory int, opts Options) *Processor[S] {
	return &Processor[S]{
		Registers: make([]S, registers),
		Memory:    make([]S, memory),
		Options:   opts,
	}
}

func span(kind string, size, addr, n int) error {
	if addr < 0 || n < 0 || addr+n > size {
		return errors.Wrapf(ErrOutOfRange, "%s [%d...%d) of %d",
			kind, addr, addr+n, size)
	}
	return nil
}

// ReadRegisters returns n registers starting from addr.
func (p *Processor[S]) ReadRegisters(addr, n int) ([]S, error) {
	if err := span("registers", len(p.Registers), addr, n); err != nil {
		return nil, err
	}
	return p.Registers[addr : addr+n], nil
}

// WriteRegisters stores the values to the registers starting from
// addr.
func (p *Processor[S]) WriteRegisters(addr int, values []S) error {
	err := span("registers", len(p.Registers), addr, len(values))
	if err != nil {
		return err
	}
	copy(p.Registers[addr:], values)
	return nil
}

// ReadMemory returns n memory cells starting from addr.
func (p *Processor[S]) ReadMemory(addr, n int) ([]S, error) {
	if err := span("memory", len(p.Memory), addr, n); err != nil {
		return nil, err
	}
	return p.Memory[addr : addr+n], nil
}

// WriteMemory stores the values to memory starting from addr.
func (p *Processor[S]) WriteMemory(addr int, values []S) error {
	if err := span("memory", len(p.Memory), addr, len(values)); err != nil {
		return err
	}
	copy(p.Memory[addr:], values)
	return nil
}

// Read returns n elements of the source starting from addr. It is
// used for memory parts other than the processor's own memory.
func Read[S any](source []S, addr, n int) ([]S, error) {
	if err := span("source", len(source), addr, n); err != nil {
		return nil, err
	}
	return source[addr : addr+n], nil
}
