package health

import "context"

// DBPinger answers whether the record store is reachable.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker answers whether at least one embedding provider is
// reachable.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
