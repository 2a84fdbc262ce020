package budget

import "testing"

func TestNew(t *testing.T) {
	b := New(500000, 123400, false, 1756684800000)
	if b.TokensLimit() != 500000 {
		t.Errorf("TokensLimit() = %d", b.TokensLimit())
	}
	if b.TokensRemaining() != 123400 {
		t.Errorf("TokensRemaining() = %d", b.TokensRemaining())
	}
	if b.IsExhausted() {
		t.Error("Exhausted() = true, want false")
	}
	if b.ResetsAt() != 1756684800000 {
		t.Errorf("ResetsAt() = %d", b.ResetsAt())
	}
}

func TestNew_Exhausted(t *testing.T) {
	b := New(2000, 0, true, 0)
	if !b.IsExhausted() {
		t.Error("Exhausted() = false, want true")
	}
	if b.TokensRemaining() != 0 {
		t.Errorf("TokensRemaining() = %d", b.TokensRemaining())
	}
}
