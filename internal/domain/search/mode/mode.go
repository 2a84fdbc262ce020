package mode

// Mode is the search strategy.
type Mode string

// Search mode constants.
const (
	// Hybrid fuses semantic and lexical rankings via RRF.
	Hybrid   Mode = "hybrid"
	Semantic Mode = "semantic"
	Lexical  Mode = "lexical"
	// Similar uses a seed record's stored embedding as the query vector.
	Similar Mode = "similar"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Hybrid || m == Semantic || m == Lexical || m == Similar
}

// NeedsEmbedding reports whether the mode requires a query vector.
func (m Mode) NeedsEmbedding() bool {
	return m == Hybrid || m == Semantic
}
