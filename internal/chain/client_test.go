package chain

import (
	"context"
	"errors"
	"testing"
)

func TestClassifyLogsError(t *testing.T) {
	tests := []struct {
		msg      string
		tooLarge bool
	}{
		{"query returned more than 10000 results", true},
		{"Log response size exceeded. You can make eth_getLogs requests with up to a 2K block range", true},
		{"eth_getLogs block range is too wide (max 1000)", true},
		{"exceed maximum block range: 50000", true},
		{"connection reset by peer", false},
		{"429 Too Many Requests", false},
	}
	for _, tt := range tests {
		cause := errors.New(tt.msg)
		err := classifyLogsError(cause)
		if got := errors.Is(err, ErrTooManyLogs); got != tt.tooLarge {
			t.Fatalf("%q: too many logs = %v", tt.msg, got)
		}
		if !tt.tooLarge && !errors.Is(err, cause) {
			t.Fatalf("%q: cause lost: %v", tt.msg, err)
		}
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(context.Background(), " "); err == nil {
		t.Fatalf("expected error for empty rpc url")
	}
}

func TestFilterLogsRefusesUnscopedQuery(t *testing.T) {
	c := &Client{}
	if _, err := c.FilterLogs(context.Background(), 1, 10, nil, nil); err == nil {
		t.Fatalf("expected error without contracts")
	}
}
