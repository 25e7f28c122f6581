package semantic

// SearchResult is a single vector search hit. Payload values are rendered
// as strings.
type SearchResult struct {
	ID      string            `json:"id"`
	Score   float32           `json:"score"`
	Payload map[string]string `json:"payload"`
}

// VectorRecord is a single vector to store in Qdrant. ID must be a UUID.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any
}
