package payroll

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// SequenceSource hands out employee sequence numbers. Implementations must
// reserve atomically: two concurrent calls never return the same value.
type SequenceSource interface {
	NextEmployeeSequence(ctx context.Context) (int64, error)
}

type IdentityAllocator struct {
	source SequenceSource
}

func NewIdentityAllocator(source SequenceSource) *IdentityAllocator {
	return &IdentityAllocator{source: source}
}

// Allocate reserves the next identity. It fails closed when the source can
// not reserve a number.
func (a *IdentityAllocator) Allocate(ctx context.Context) (string, error) {
	if a == nil || a.source == nil {
		return "", ErrAllocationUnavailable
	}
	seq, err := a.source.NextEmployeeSequence(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAllocationUnavailable, err)
	}
	if seq <= 0 {
		return "", fmt.Errorf("%w: non-positive sequence %d", ErrAllocationUnavailable, seq)
	}
	return FormatIdentity(seq), nil
}

func FormatIdentity(seq int64) string {
	return fmt.Sprintf("%s%0*d", IdentityPrefix, identityDigits, seq)
}

// ParseIdentity extracts the numeric suffix of an identity like EMP0007.
func ParseIdentity(identity string) (int64, bool) {
	suffix, ok := strings.CutPrefix(identity, IdentityPrefix)
	if !ok || len(suffix) < identityDigits {
		return 0, false
	}
	seq, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil || seq <= 0 {
		return 0, false
	}
	return seq, true
}

// MaxSequence scans identities and returns the largest numeric suffix.
func MaxSequence(identities []string) int64 {
	var highest int64
	for _, identity := range identities {
		if seq, ok := ParseIdentity(identity); ok && seq > highest {
			highest = seq
		}
	}
	return highest
}
