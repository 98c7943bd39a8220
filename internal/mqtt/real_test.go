package mqtt

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// stubToken completes immediately, never, or with an error.
type stubToken struct {
	done bool
	err  error
}

func (s stubToken) Wait() bool                     { return s.done }
func (s stubToken) WaitTimeout(time.Duration) bool { return s.done }
func (s stubToken) Error() error                   { return s.err }

func (s stubToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if s.done {
		close(ch)
	}
	return ch
}

func TestWaitToken(t *testing.T) {
	if err := waitToken(stubToken{done: true}, "subscribe a/b"); err != nil {
		t.Errorf("completed token: got %v", err)
	}

	err := waitToken(stubToken{done: false}, "subscribe a/b")
	if err == nil {
		t.Fatal("expected an error when the broker never answers")
	}
	if !strings.Contains(err.Error(), "subscribe a/b") || !strings.Contains(err.Error(), "no response") {
		t.Errorf("timeout error: got %q", err)
	}

	refused := errors.New("not authorised")
	err = waitToken(stubToken{done: true, err: refused}, "publish")
	if !errors.Is(err, refused) {
		t.Errorf("broker error: got %v, want wrapped %v", err, refused)
	}
}
