package budget

// Budget is a read-only snapshot of the token budget at a moment in
// time.
type Budget struct {
	tokensLimit     int
	tokensRemaining int
	isExhausted     bool
	resetsAt        int64 // unix millis, converted to ISO 8601 at transport layer
}

// New builds a Budget value from raw counters.
func New(limit, remaining int, isExhausted bool, resetsAt int64) Budget {
	return Budget{
		tokensLimit:     limit,
		tokensRemaining: remaining,
		isExhausted:     isExhausted,
		resetsAt:        resetsAt,
	}
}

// TokensLimit returns the configured cap, zero when unlimited.
func (b Budget) TokensLimit() int { return b.tokensLimit }

// TokensRemaining returns how many tokens are left in the period.
func (b Budget) TokensRemaining() int { return b.tokensRemaining }

// IsExhausted reports whether the cap has been reached.
func (b Budget) IsExhausted() bool { return b.isExhausted }

// ResetsAt returns when the counters roll over (unix millis).
func (b Budget) ResetsAt() int64 { return b.resetsAt }
