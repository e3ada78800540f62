package dispatch

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		exp  bool
	}{
		{"nil", nil, false},
		{"nonce too low", errors.New("nonce too low"), true},
		{"wrapped nonce", fmt.Errorf("submit: %w", errors.New("Nonce too LOW")), true},
		{"underpriced", errors.New("replacement transaction underpriced"), true},
		{"already known", errors.New("already known"), true},
		{"timeout", errors.New("request timeout"), true},
		{"deadline", errors.New("context deadline exceeded"), true},
		{"conn refused", errors.New("dial tcp: connection refused"), true},
		{"bare eof", io.EOF, true},
		{"wrapped eof", fmt.Errorf("post status: %w", io.EOF), true},
		{"unexpected eof", errors.New("unexpected EOF"), true},
		{"eof inside a word", errors.New("invalid merkle proof"), false},
		{"rate limited", errors.New("429 Too Many Requests"), true},
		{"server busy", errors.New("SERVER_BUSY"), true},
		{"dup tx", errors.New("DUP_TRANSACTION error"), true},
		{"insufficient funds", errors.New("insufficient funds for gas * price + value"), false},
		{"reverted", errors.New("execution reverted"), false},
		{"bad signature", errors.New("invalid sender"), false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Retryable(c.err); got != c.exp {
				t.Errorf("Retryable(%v) expected %v got %v", c.err, c.exp, got)
			}
		})
	}
}

func TestNonceRelated(t *testing.T) {
	cases := []struct {
		name string
		err  error
		exp  bool
	}{
		{"nil", nil, false},
		{"nonce too high", errors.New("nonce too high"), true},
		{"known transaction", errors.New("known transaction: 0xabc"), true},
		{"underpriced", errors.New("replacement transaction underpriced"), true},
		{"timeout", errors.New("request timeout"), false},
		{"funds", errors.New("insufficient funds"), false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := NonceRelated(c.err); got != c.exp {
				t.Errorf("NonceRelated(%v) expected %v got %v", c.err, c.exp, got)
			}
		})
	}
}
