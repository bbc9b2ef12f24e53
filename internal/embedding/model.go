// Package embedding provides word-embedding models that answer
// nearest-neighbour queries for the synonym pipeline.
package embedding

import "context"

// Neighbor is a similar word with its cosine similarity.
type Neighbor struct {
	Word  string
	Score float64
}

// Model returns up to k nearest neighbours of word, most similar first,
// never including word itself.
type Model interface {
	NearestNeighbors(ctx context.Context, word string, k int) ([]Neighbor, error)
}
