package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrap_ErrorIncludesMessageAndInner(t *testing.T) {
	inner := errors.New("disk full")

	wrapped := Wrap(inner, "failed to save state for %s", "A")

	require.Contains(t, wrapped.Error(), "failed to save state for A")
	require.Contains(t, wrapped.Error(), "disk full")
}

func TestWrap_UnwrapReturnsInner(t *testing.T) {
	inner := errors.New("disk full")
	wrapped := Wrap(inner, "save failed")

	require.True(t, errors.Is(wrapped, inner))
}

func TestNew_ErrorWithNoInnerOmitsColon(t *testing.T) {
	e := New("plain message")

	require.Equal(t, "plain message", e.Error())
	require.Nil(t, e.Unwrap())
}
