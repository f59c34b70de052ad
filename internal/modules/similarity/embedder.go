// Package similarity finds near-duplicate and unusually unique lot
// descriptions by cosine similarity over text embeddings.
package similarity

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Encoder embeds texts against one fitted corpus. It never changes after
// Fit returns it.
type Encoder interface {
	Embed(ctx context.Context, texts []string) ([]Vector, error)
}

// Embedder turns texts into L2-normalized vectors. Fit learns whatever
// corpus state the strategy needs, embeds the corpus and returns the
// Encoder for further texts.
type Embedder interface {
	Name() string
	Fit(ctx context.Context, texts []string) (Encoder, []Vector, error)
}

// Vector is an embedding. Sparse vectors carry sorted Indices alongside
// Values; dense vectors leave Indices nil.
type Vector struct {
	Indices []int
	Values  []float64
}

// Dot returns the inner product; for normalized vectors this is the cosine
func (v Vector) Dot(o Vector) float64 {
	if v.Indices == nil && o.Indices == nil {
		if len(v.Values) != len(o.Values) {
			return 0
		}
		return floats.Dot(v.Values, o.Values)
	}

	var sum float64
	i, j := 0, 0
	for i < len(v.Indices) && j < len(o.Indices) {
		switch {
		case v.Indices[i] == o.Indices[j]:
			sum += v.Values[i] * o.Values[j]
			i++
			j++
		case v.Indices[i] < o.Indices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

// IsZero reports whether the vector has no weight
func (v Vector) IsZero() bool {
	for _, x := range v.Values {
		if x != 0 {
			return false
		}
	}
	return true
}

func normalize(values []float64) {
	norm := floats.Norm(values, 2)
	if norm == 0 || math.IsNaN(norm) {
		return
	}
	floats.Scale(1/norm, values)
}

func denseVector(raw []float32) Vector {
	values := make([]float64, len(raw))
	for i, x := range raw {
		values[i] = float64(x)
	}
	normalize(values)
	return Vector{Values: values}
}

func sparseVector(weights map[int]float64) Vector {
	indices := make([]int, 0, len(weights))
	for idx := range weights {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	values := make([]float64, len(indices))
	for i, idx := range indices {
		values[i] = weights[idx]
	}
	normalize(values)
	return Vector{Indices: indices, Values: values}
}
