package errs

import (
	"errors"
	"testing"
)

var errRoot = errors.New("root")

func TestWrapPreservesChain(t *testing.T) {
	err := Wrapf(Wrap(errRoot, "dial"), "store %q", "page")

	if !errors.Is(err, errRoot) {
		t.Fatalf("expected chain to contain root")
	}
	if got := err.Error(); got != `store "page": dial: root` {
		t.Fatalf("unexpected message %q", got)
	}
	if chain := Chain(err); len(chain) != 3 {
		t.Fatalf("expected 3 links, got %v", chain)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "x") != nil || Wrapf(nil, "x %d", 1) != nil {
		t.Fatalf("wrapping nil must stay nil")
	}
	if Chain(nil) != nil {
		t.Fatalf("chain of nil must be nil")
	}
}

func TestLoggable(t *testing.T) {
	v := Loggable(Wrap(errRoot, "get")).LogValue()
	if len(v.Group()) != 2 {
		t.Fatalf("expected message and chain attrs, got %v", v)
	}
	if len(Loggable(nil).LogValue().Group()) != 0 {
		t.Fatalf("expected empty group for nil")
	}
}
