package common

import (
	"fmt"
	"testing"
)

func TestIsStore(t *testing.T) {
	err := NewStoreErr("Delta", KeyNotFound, "bafk")

	if !IsStore(err, KeyNotFound) {
		t.Fatalf("err should be a KeyNotFound StoreErr")
	}

	if IsStore(err, Expired) {
		t.Fatalf("err should not be an Expired StoreErr")
	}

	wrapped := fmt.Errorf("reading delta: %w", err)
	if !IsStore(wrapped, KeyNotFound) {
		t.Fatalf("wrapped err should still be a KeyNotFound StoreErr")
	}

	if IsStore(fmt.Errorf("other"), KeyNotFound) {
		t.Fatalf("plain error should not be a StoreErr")
	}

	if got, want := err.Error(), "Delta, bafk, Not Found"; got != want {
		t.Fatalf("Error() should be %q, not %q", want, got)
	}
}
