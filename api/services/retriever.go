package services

import (
	"math"
	"sort"
	"strings"

	"github.com/local/pdftutor/api/models"
)

// Okapi BM25 parameters
const (
	bm25K1      = 1.5
	bm25B       = 0.75
	bm25Epsilon = 0.25
)

// RetrievedChunk is a scored query hit
type RetrievedChunk struct {
	ChunkID  string               `json:"chunk_id"`
	Text     string               `json:"text"`
	Score    float64              `json:"score"`
	Metadata models.ChunkMetadata `json:"metadata"`
}

// Index is a BM25 ranking index over a fixed chunk corpus. It is immutable once
// built and safe for concurrent queries.
type Index struct {
	chunks    []models.Chunk
	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
}

// Tokenize lower-cases text and splits it on whitespace
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// BuildIndex tokenizes the chunks and computes the corpus statistics
func BuildIndex(chunks []models.Chunk) *Index {
	idx := &Index{
		chunks:    chunks,
		termFreqs: make([]map[string]int, len(chunks)),
		docLens:   make([]int, len(chunks)),
		idf:       make(map[string]float64),
	}
	if len(chunks) == 0 {
		return idx
	}

	docFreq := make(map[string]int)
	// sorted vocabulary keeps the idf sum independent of map iteration order
	var vocabulary []string
	totalLen := 0

	for i, ch := range chunks {
		tokens := Tokenize(ch.Text)
		freqs := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freqs[tok]++
		}
		for tok := range freqs {
			if docFreq[tok] == 0 {
				vocabulary = append(vocabulary, tok)
			}
			docFreq[tok]++
		}
		idx.termFreqs[i] = freqs
		idx.docLens[i] = len(tokens)
		totalLen += len(tokens)
	}
	sort.Strings(vocabulary)

	idx.avgDocLen = float64(totalLen) / float64(len(chunks))

	n := float64(len(chunks))
	idfSum := 0.0
	var negative []string
	for _, tok := range vocabulary {
		df := float64(docFreq[tok])
		v := math.Log(n-df+0.5) - math.Log(df+0.5)
		idx.idf[tok] = v
		idfSum += v
		if v < 0 {
			negative = append(negative, tok)
		}
	}
	if len(vocabulary) > 0 {
		floor := bm25Epsilon * idfSum / float64(len(vocabulary))
		for _, tok := range negative {
			idx.idf[tok] = floor
		}
	}

	return idx
}

// Len reports the number of chunks in the corpus
func (idx *Index) Len() int {
	return len(idx.chunks)
}

// Scores returns the BM25 score of every chunk for the query, in corpus order
func (idx *Index) Scores(query string) []float64 {
	scores := make([]float64, len(idx.chunks))
	if len(idx.chunks) == 0 || idx.avgDocLen == 0 {
		return scores
	}
	for _, tok := range Tokenize(query) {
		idf, ok := idx.idf[tok]
		if !ok {
			continue
		}
		for i, freqs := range idx.termFreqs {
			tf := float64(freqs[tok])
			if tf == 0 {
				continue
			}
			norm := 1 - bm25B + bm25B*float64(idx.docLens[i])/idx.avgDocLen
			scores[i] += idf * (tf * (bm25K1 + 1)) / (tf + bm25K1*norm)
		}
	}
	return scores
}

// Query ranks the corpus against text and returns at most topK chunks with a
// positive score, best first. Ties keep corpus order.
func (idx *Index) Query(text string, topK int) []RetrievedChunk {
	results := []RetrievedChunk{}
	if topK <= 0 || len(idx.chunks) == 0 {
		return results
	}

	scores := idx.Scores(text)
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if len(order) > topK {
		order = order[:topK]
	}
	for _, i := range order {
		if scores[i] <= 0 {
			continue
		}
		ch := idx.chunks[i]
		results = append(results, RetrievedChunk{
			ChunkID:  ch.ChunkID,
			Text:     ch.Text,
			Score:    scores[i],
			Metadata: ch.Metadata,
		})
	}
	return results
}
