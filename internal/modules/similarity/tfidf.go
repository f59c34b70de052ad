package similarity

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
)

// tokens of two or more word characters
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// TFIDFEmbedder is a word 1-2 gram TF-IDF vectorizer with sublinear term
// frequency and smoothed idf. It needs no external service.
type TFIDFEmbedder struct {
	maxFeatures int
}

// NewTFIDFEmbedder keeps at most maxFeatures terms, ranked by document frequency
func NewTFIDFEmbedder(maxFeatures int) *TFIDFEmbedder {
	if maxFeatures <= 0 {
		maxFeatures = 5000
	}
	return &TFIDFEmbedder{maxFeatures: maxFeatures}
}

// tfidfModel is the vocabulary and idf of one Fit
type tfidfModel struct {
	vocab map[string]int
	idf   []float64
}

// Name identifies the strategy
func (e *TFIDFEmbedder) Name() string { return "tfidf" }

func terms(text string) []string {
	words := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, 2*len(words))
	out = append(out, words...)
	for i := 0; i+1 < len(words); i++ {
		out = append(out, words[i]+" "+words[i+1])
	}
	return out
}

func countTerms(text string) map[string]int {
	counts := map[string]int{}
	for _, t := range terms(text) {
		counts[t]++
	}
	return counts
}

// Fit learns the vocabulary and idf from texts and returns their vectors
func (e *TFIDFEmbedder) Fit(ctx context.Context, texts []string) (Encoder, []Vector, error) {
	counts := make([]map[string]int, len(texts))
	df := map[string]int{}
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		counts[i] = countTerms(text)
		for t := range counts[i] {
			df[t]++
		}
	}

	ranked := make([]string, 0, len(df))
	for t := range df {
		ranked = append(ranked, t)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if df[ranked[i]] != df[ranked[j]] {
			return df[ranked[i]] > df[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	if len(ranked) > e.maxFeatures {
		ranked = ranked[:e.maxFeatures]
	}
	sort.Strings(ranked)

	n := float64(len(texts))
	m := &tfidfModel{vocab: make(map[string]int, len(ranked)), idf: make([]float64, len(ranked))}
	for i, t := range ranked {
		m.vocab[t] = i
		m.idf[i] = math.Log((1+n)/(1+float64(df[t]))) + 1
	}

	vectors := make([]Vector, len(texts))
	for i := range texts {
		vectors[i] = m.vectorize(counts[i])
	}
	return m, vectors, nil
}

// Embed vectorizes texts against the fitted vocabulary. Unknown terms are ignored.
func (m *tfidfModel) Embed(_ context.Context, texts []string) ([]Vector, error) {
	vectors := make([]Vector, len(texts))
	for i, text := range texts {
		vectors[i] = m.vectorize(countTerms(text))
	}
	return vectors, nil
}

func (m *tfidfModel) vectorize(counts map[string]int) Vector {
	weights := map[int]float64{}
	for t, c := range counts {
		idx, ok := m.vocab[t]
		if !ok {
			continue
		}
		weights[idx] = (1 + math.Log(float64(c))) * m.idf[idx]
	}
	return sparseVector(weights)
}
