package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapAndAs(t *testing.T) {
	cause := stdErrors.New("row not found")
	err := Wrap(CodeNotFound, cause, "reservation lookup")

	typed := As(fmt.Errorf("outer: %w", err))
	if typed == nil {
		t.Fatal("expected typed error from wrapped chain")
	}
	if typed.Code() != CodeNotFound {
		t.Fatalf("unexpected code: %s", typed.Code())
	}
	if !stdErrors.Is(typed, cause) {
		t.Fatal("expected cause to survive wrapping")
	}
}

func TestMetadataFor(t *testing.T) {
	meta := MetadataFor(CodeStateConflict)
	if meta.HTTPStatus != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status: %d", meta.HTTPStatus)
	}
	if !meta.DetailsAllowed {
		t.Fatal("state conflicts should surface details")
	}

	fallback := MetadataFor(Code("UNKNOWN"))
	if fallback.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unknown codes should fall back to internal, got %d", fallback.HTTPStatus)
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := Wrap(CodeDependency, stdErrors.New("connection reset"), "post receipt")
	d := Dump(err)
	if d.Code != CodeDependency {
		t.Fatalf("unexpected code: %s", d.Code)
	}
	if len(d.Chain) < 2 {
		t.Fatalf("expected full chain, got %v", d.Chain)
	}
}
