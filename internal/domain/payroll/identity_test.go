package payroll

import (
	"context"
	"errors"
	"testing"
)

type failingSource struct{}

func (failingSource) NextEmployeeSequence(context.Context) (int64, error) {
	return 0, errors.New("counter offline")
}

func TestFormatIdentity(t *testing.T) {
	if got := FormatIdentity(7); got != "EMP0007" {
		t.Fatalf("expected EMP0007, got %s", got)
	}
	if got := FormatIdentity(12345); got != "EMP12345" {
		t.Fatalf("expected EMP12345, got %s", got)
	}
}

func TestParseIdentity(t *testing.T) {
	if seq, ok := ParseIdentity("EMP0042"); !ok || seq != 42 {
		t.Fatalf("expected 42, got %d %v", seq, ok)
	}
	for _, bad := range []string{"", "EMP", "EMP12", "emp0001", "EMPabcd", "EMP0000", "X0001"} {
		if _, ok := ParseIdentity(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestMaxSequenceIgnoresForeignIdentities(t *testing.T) {
	got := MaxSequence([]string{"EMP0003", "legacy-7", "EMP0010", "EMP0002"})
	if got != 10 {
		t.Fatalf("expected 10, got %d", got)
	}
}

func TestAllocateFailsClosed(t *testing.T) {
	allocator := NewIdentityAllocator(failingSource{})
	identity, err := allocator.Allocate(context.Background())
	if !errors.Is(err, ErrAllocationUnavailable) {
		t.Fatalf("expected ErrAllocationUnavailable, got %v", err)
	}
	if identity != "" {
		t.Fatalf("expected no identity, got %s", identity)
	}
}

func TestAllocateContinuesAfterSeededIdentities(t *testing.T) {
	store := NewMemoryStore(Employee{Identity: "EMP0041", Contact: Contact{Email: "a@example.com", Phone: "1"}})
	allocator := NewIdentityAllocator(store)
	identity, err := allocator.Allocate(context.Background())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if identity != "EMP0042" {
		t.Fatalf("expected EMP0042, got %s", identity)
	}
}
