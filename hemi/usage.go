//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package hemi

import (
	"fmt"
	"sort"
	"strings"
)

// Usage records the preprocessing consumption of an engine.
type Usage struct {
	// Triples counts the matrix triples consumed per shape.
	Triples map[Shape]int
	// Elements counts the preprocessed matrix elements consumed.
	Elements uint64
	// PlainProducts counts the secret products computed on the
	// plain path.
	PlainProducts uint64
	// Misses counts the preprocessing cache misses.
	Misses int
	// Requests counts the preprocessing lookups per shape.
	Requests map[Shape]int
	// RequestedElements sums the matrix elements of the shapes
	// looked up.
	RequestedElements uint64
}

func newUsage() Usage {
	return Usage{
		Triples:  make(map[Shape]int),
		Requests: make(map[Shape]int),
	}
}

func (u Usage) clone() Usage {
	result := u
	result.Triples = make(map[Shape]int, len(u.Triples))
	for k, v := range u.Triples {
		result.Triples[k] = v
	}
	result.Requests = make(map[Shape]int, len(u.Requests))
	for k, v := range u.Requests {
		result.Requests[k] = v
	}
	return result
}

// TotalTriples returns the number of consumed triples over all
// shapes.
func (u Usage) TotalTriples() int {
	var sum int
	for _, v := range u.Triples {
		sum += v
	}
	return sum
}

// Shapes returns the shapes with consumed triples in a deterministic
// order.
func (u Usage) Shapes() []Shape {
	var result []Shape
	for shape := range u.Triples {
		result = append(result, shape)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Rows != b.Rows {
			return a.Rows < b.Rows
		}
		if a.Inner != b.Inner {
			return a.Inner < b.Inner
		}
		return a.Cols < b.Cols
	})
	return result
}

func (u Usage) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "triples=%d", u.TotalTriples())
	for _, shape := range u.Shapes() {
		fmt.Fprintf(&sb, " %v:%d", shape, u.Triples[shape])
	}
	fmt.Fprintf(&sb, ", elements=%d, plain=%d, misses=%d, requested=%d",
		u.Elements, u.PlainProducts, u.Misses, u.RequestedElements)
	return sb.String()
}
