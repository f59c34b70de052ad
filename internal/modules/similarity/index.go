package similarity

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/aristath/tenderwatch/internal/config"
	"github.com/aristath/tenderwatch/internal/domain"
	"github.com/aristath/tenderwatch/internal/modules/textclean"
)

// Match is one similar lot
type Match struct {
	LotID      string  `json:"lot_id"`
	NameRu     string  `json:"name_ru,omitempty"`
	Similarity float64 `json:"similarity"`
}

// Result is the similarity view of one lot or text
type Result struct {
	MaxSimilarity float64 `json:"max_similarity"`
	IsCopyPaste   bool    `json:"is_copypaste"`
	IsUnique      bool    `json:"is_unique"`
	SimilarLots   []Match `json:"similar_lots"`
}

type indexState struct {
	embedder Embedder
	encoder  Encoder // fitted with vectors; queries must use this one
	ids      []string
	names    []string
	vectors  []Vector
	pos      map[string]int
}

// Index is the corpus embedding index. Build swaps the state atomically.
type Index struct {
	primary  Embedder
	fallback *TFIDFEmbedder
	cal      config.SimilarityCalibration
	log      zerolog.Logger

	mu    sync.RWMutex
	state *indexState
}

// NewIndex creates an index using embedder, falling back to TF-IDF when
// it fails. A nil embedder means TF-IDF only.
func NewIndex(embedder Embedder, cal config.SimilarityCalibration, log zerolog.Logger) *Index {
	fallback := NewTFIDFEmbedder(cal.MaxFeatures)
	if embedder == nil {
		embedder = fallback
	}
	return &Index{
		primary:  embedder,
		fallback: fallback,
		cal:      cal,
		log:      log.With().Str("component", "similarity").Logger(),
		state:    &indexState{embedder: embedder, pos: map[string]int{}},
	}
}

func lotText(lot domain.Lot) string {
	return textclean.Clean(lot.RawDescription())
}

func (x *Index) indexable(text string) bool {
	return utf8.RuneCountInString(text) >= x.cal.MinTextLength
}

// Build embeds every lot with enough description text
func (x *Index) Build(ctx context.Context, lots []domain.Lot) error {
	start := time.Now()
	st := &indexState{pos: map[string]int{}}
	var texts []string
	for _, lot := range lots {
		text := lotText(lot)
		if !x.indexable(text) {
			continue
		}
		if _, dup := st.pos[lot.LotID]; dup {
			continue
		}
		st.pos[lot.LotID] = len(st.ids)
		st.ids = append(st.ids, lot.LotID)
		st.names = append(st.names, lot.NameRu)
		texts = append(texts, text)
	}

	embedder := x.primary
	encoder, vectors, err := embedder.Fit(ctx, texts)
	if err != nil && embedder != Embedder(x.fallback) {
		if ctx.Err() != nil {
			return fmt.Errorf("similarity build cancelled: %w", ctx.Err())
		}
		x.log.Warn().Err(err).Str("embedder", embedder.Name()).Msg("Embedder failed, falling back to TF-IDF")
		embedder = x.fallback
		encoder, vectors, err = embedder.Fit(ctx, texts)
	}
	if err != nil {
		return fmt.Errorf("failed to embed corpus: %w", err)
	}
	st.embedder = embedder
	st.encoder = encoder
	st.vectors = vectors

	x.mu.Lock()
	x.state = st
	x.mu.Unlock()

	x.log.Info().
		Int("indexed", len(st.ids)).
		Int("skipped", len(lots)-len(st.ids)).
		Str("embedder", embedder.Name()).
		Dur("duration", time.Since(start)).
		Msg("Similarity index built")
	return nil
}

// Size returns the number of indexed lots
func (x *Index) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.state.ids)
}

// EmbedderName names the strategy the current index was built with
func (x *Index) EmbedderName() string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.state.embedder.Name()
}

// FindSimilar returns the top k lots most similar to lot, excluding itself.
// Lots outside the index are embedded on the fly.
func (x *Index) FindSimilar(ctx context.Context, lot domain.Lot, k int) (Result, error) {
	x.mu.RLock()
	st := x.state
	x.mu.RUnlock()

	if i, ok := st.pos[lot.LotID]; ok {
		return x.rank(st, st.vectors[i], lot.LotID, k), nil
	}
	return x.findText(ctx, st, lotText(lot), lot.LotID, k)
}

// FindSimilarText ranks the corpus against ad-hoc text
func (x *Index) FindSimilarText(ctx context.Context, text string, k int) (Result, error) {
	x.mu.RLock()
	st := x.state
	x.mu.RUnlock()

	return x.findText(ctx, st, textclean.Clean(text), "", k)
}

func (x *Index) findText(ctx context.Context, st *indexState, text, selfID string, k int) (Result, error) {
	if !x.indexable(text) || len(st.ids) == 0 {
		return emptyResult(), nil
	}
	vectors, err := st.encoder.Embed(ctx, []string{text})
	if err != nil {
		return emptyResult(), fmt.Errorf("failed to embed query text: %w", err)
	}
	return x.rank(st, vectors[0], selfID, k), nil
}

func emptyResult() Result {
	return Result{SimilarLots: []Match{}}
}

func (x *Index) rank(st *indexState, query Vector, selfID string, k int) Result {
	if k <= 0 {
		k = x.cal.TopK
	}

	matches := make([]Match, 0, len(st.ids))
	for i, id := range st.ids {
		if id == selfID {
			continue
		}
		sim := query.Dot(st.vectors[i])
		matches = append(matches, Match{LotID: id, NameRu: st.names[i], Similarity: sim})
	}
	if len(matches) == 0 {
		return emptyResult()
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].LotID < matches[j].LotID
	})
	if len(matches) > k {
		matches = matches[:k]
	}

	maxSim := matches[0].Similarity
	for i := range matches {
		matches[i].Similarity = round4(matches[i].Similarity)
	}
	return Result{
		MaxSimilarity: round4(maxSim),
		IsCopyPaste:   maxSim >= x.cal.CopyPasteThreshold,
		IsUnique:      maxSim <= x.cal.UniqueThreshold,
		SimilarLots:   matches,
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
