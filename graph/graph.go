package graph

import (
	"fmt"

	slam "github.com/milosgajdos/go-slam"
	"github.com/milosgajdos/go-slam/factor"
)

// Graph is an append-only factor graph
type Graph struct {
	factors []slam.Factor
}

// New creates new empty Graph and returns it.
func New() *Graph {
	return &Graph{}
}

// Add appends factor f to the graph
func (g *Graph) Add(f slam.Factor) {
	g.factors = append(g.factors, f)
}

// Len returns the number of factors
func (g *Graph) Len() int {
	return len(g.factors)
}

// At returns the i-th factor
func (g *Graph) At(i int) slam.Factor {
	return g.factors[i]
}

// Factors returns all factors in insertion order
func (g *Graph) Factors() []slam.Factor {
	factors := make([]slam.Factor, len(g.factors))
	copy(factors, g.factors)

	return factors
}

// Keys returns the keys referenced by the graph factors in order of first appearance
func (g *Graph) Keys() []slam.Key {
	var keys []slam.Key
	seen := make(map[slam.Key]bool)
	for _, f := range g.factors {
		for _, k := range f.Keys() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}

	return keys
}

// Error returns the total whitened cost of the graph at vals.
// It returns error if any factor can not be evaluated.
func (g *Graph) Error(vals *Values) (float64, error) {
	var total float64
	for i, f := range g.factors {
		v, err := vals.Gather(f.Keys())
		if err != nil {
			return 0, fmt.Errorf("factor %d: %w", i, err)
		}

		e, err := factor.Error(f, v)
		if err != nil {
			return 0, fmt.Errorf("factor %d: %w", i, err)
		}
		total += e
	}

	return total, nil
}
