package metrics

// Metrics is a read-only snapshot of embedding API consumption over one
// reporting period.
type Metrics struct {
	embeddingRequests int
	tokens            int
	costMillidollars  int
}

// New builds a Metrics value from raw counters.
func New(requests, tokens, costMillidollars int) Metrics {
	return Metrics{embeddingRequests: requests, tokens: tokens, costMillidollars: costMillidollars}
}

// EmbeddingRequests returns how many embedding API calls were made.
func (m Metrics) EmbeddingRequests() int { return m.embeddingRequests }

// Tokens returns the total prompt tokens spent.
func (m Metrics) Tokens() int { return m.tokens }

// CostMillidollars returns the cost in thousandths of a dollar.
func (m Metrics) CostMillidollars() int { return m.costMillidollars }
