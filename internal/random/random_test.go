package random

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSource_TimeoutStaysWithinBounds(t *testing.T) {
	s := NewSource(1)
	min, max := 10*time.Millisecond, 20*time.Millisecond

	for i := 0; i < 100; i++ {
		d := s.Timeout(min, max)
		require.GreaterOrEqual(t, d, min)
		require.Less(t, d, max)
	}
}

func TestSource_TimeoutReturnsMinWhenSpanIsZero(t *testing.T) {
	s := NewSource(1)

	d := s.Timeout(5*time.Millisecond, 5*time.Millisecond)

	require.Equal(t, 5*time.Millisecond, d)
}

func TestSource_SameSeedProducesSameSequence(t *testing.T) {
	a := NewSource(7)
	b := NewSource(7)

	for i := 0; i < 10; i++ {
		require.Equal(t, a.Timeout(0, time.Second), b.Timeout(0, time.Second))
	}
}
