package main

import "testing"

func TestTokenLedger(t *testing.T) {
	l := newTokenLedger()
	l.record(1, "a")
	l.record(1, "a")
	l.record(2, "b")
	if err := l.verify(); err != nil {
		t.Fatalf("verify() error = %v", err)
	}

	l.record(2, "c")
	if err := l.verify(); err == nil {
		t.Fatal("verify() accepted two tokens for one user")
	}
}
