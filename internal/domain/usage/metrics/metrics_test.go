package metrics

import "testing"

func TestNew(t *testing.T) {
	m := New(42, 18000, 9)
	if m.EmbeddingRequests() != 42 {
		t.Errorf("EmbeddingRequests() = %d", m.EmbeddingRequests())
	}
	if m.Tokens() != 18000 {
		t.Errorf("Tokens() = %d", m.Tokens())
	}
	if m.CostMillidollars() != 9 {
		t.Errorf("CostMillidollars() = %d", m.CostMillidollars())
	}
}

func TestNew_Zero(t *testing.T) {
	m := New(0, 0, 0)
	if m.EmbeddingRequests() != 0 || m.Tokens() != 0 || m.CostMillidollars() != 0 {
		t.Error("zero metrics should have zero values")
	}
}
